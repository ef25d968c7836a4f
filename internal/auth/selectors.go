package auth

// Login page DOM selectors.
// These are isolated here because the panel's markup is not under our control.
// Update these when login breaks.

const (
	UsernameField = `input[name="username"]`
	PasswordField = `input[name="password"]`
	CaptchaField  = `input[name="math_captcha"]`
	AgreeCheckbox = `input[name="agree"]`
	CSRFToken     = `input[name="_token"]`
	SubmitButton  = `button[type="submit"]`

	// CaptchaPromptAttr holds the arithmetic prompt on the captcha field.
	CaptchaPromptAttr = "placeholder"
)

// LoggedInPhrases appear on any page served to an authenticated session.
var LoggedInPhrases = []string{"退出登录", "logout", "欢迎回来", "welcome back"}
