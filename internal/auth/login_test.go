package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ibeckermayer/renewbot/internal/browser"
	"github.com/ibeckermayer/renewbot/internal/browser/browsertest"
	"github.com/ibeckermayer/renewbot/internal/challenge"
	"github.com/ibeckermayer/renewbot/internal/diagnostics"
	"github.com/ibeckermayer/renewbot/internal/pacing"
	"github.com/ibeckermayer/renewbot/internal/types"
)

const loginURL = "https://freecloud.ltd/login"

const formWithCaptcha = `<html><head><title>登录</title></head><body><form>
<input type="hidden" name="_token" value="abcdefghijklmnopqrstuvwxyz">
<input name="username">
<input name="password" type="password">
<input name="math_captcha" placeholder="12 + 7 = ?">
<input type="checkbox" name="agree">
<button type="submit">登录</button>
</form></body></html>`

const plainForm = `<html><head><title>登录</title></head><body><form>
<input name="username">
<input name="password" type="password">
<input type="checkbox" name="agree" checked>
<button type="submit">登录</button>
</form></body></html>`

const dashboard = `<html><head><title>控制台</title></head><body>欢迎回来 <a href="/logout">退出登录</a></body></html>`

const wrongPassword = `<html><head><title>登录</title></head><body>用户名或密码错误</body></html>`

type recorder struct{ points []diagnostics.Point }

func (r *recorder) Capture(_ context.Context, _ browser.Page, p diagnostics.Point) {
	r.points = append(r.points, p)
}

func newFlow(t *testing.T, pacer pacing.Pauser, rec diagnostics.Recorder) *Flow {
	logger := zaptest.NewLogger(t)
	return NewFlow(DefaultOptions(loginURL), challenge.NewGate(rec, logger), pacer, rec, logger)
}

var creds = types.Credentials{Username: "alice", Password: "hunter2"}

func TestLoginWithCaptcha(t *testing.T) {
	page := browsertest.New().SetPage(loginURL, formWithCaptcha)
	page.OnClick(SubmitButton, func(p *browsertest.Page) { p.Load("https://freecloud.ltd/member/index", dashboard) })

	pacer := &pacing.Counter{}
	rec := &recorder{}
	res, err := newFlow(t, pacer, rec).Login(context.Background(), page, creds)

	require.NoError(t, err)
	assert.Equal(t, LoggedIn, res)
	assert.Nil(t, res.Err())
	assert.Equal(t, []browsertest.Fill{
		{Selector: CaptchaField, Value: "19"},
		{Selector: UsernameField, Value: "alice"},
		{Selector: PasswordField, Value: "hunter2"},
	}, page.Fills)
	assert.Contains(t, page.Clicks, AgreeCheckbox)
	assert.Equal(t, []diagnostics.Point{diagnostics.AfterLogin}, rec.points)

	// One pause after the form appears, one per fill, one before the
	// checkbox and one before submitting.
	assert.Equal(t, 1+3+1+1, pacer.Count())
}

func TestLoginWithoutCaptchaLeavesCheckedBoxAlone(t *testing.T) {
	page := browsertest.New().SetPage(loginURL, plainForm)
	page.OnClick(SubmitButton, func(p *browsertest.Page) { p.Load("https://freecloud.ltd/", dashboard) })

	res, err := newFlow(t, &pacing.Counter{}, &recorder{}).Login(context.Background(), page, creds)

	require.NoError(t, err)
	assert.Equal(t, LoggedIn, res)
	assert.Len(t, page.Fills, 2)
	assert.NotContains(t, page.Clicks, AgreeCheckbox)
}

func TestLoginUnparsableCaptchaIsSkipped(t *testing.T) {
	form := `<html><body><input name="username"><input name="password">
<input name="math_captcha" placeholder="请输入验证码"><button type="submit">登录</button></body></html>`
	page := browsertest.New().SetPage(loginURL, form)
	page.OnClick(SubmitButton, func(p *browsertest.Page) { p.Load("/", dashboard) })

	res, err := newFlow(t, &pacing.Counter{}, &recorder{}).Login(context.Background(), page, creds)

	require.NoError(t, err)
	assert.Equal(t, LoggedIn, res)
	for _, f := range page.Fills {
		assert.NotEqual(t, CaptchaField, f.Selector)
	}
}

func TestLoginRetriesNavigationOnce(t *testing.T) {
	page := browsertest.New().SetPage(loginURL, "<html><body>loading</body></html>", plainForm)
	page.OnClick(SubmitButton, func(p *browsertest.Page) { p.Load("/", dashboard) })

	res, err := newFlow(t, &pacing.Counter{}, &recorder{}).Login(context.Background(), page, creds)

	require.NoError(t, err)
	assert.Equal(t, LoggedIn, res)
	assert.Equal(t, []string{loginURL, loginURL}, page.Navigations)
}

func TestLoginFormNotFound(t *testing.T) {
	page := browsertest.New().SetPage(loginURL, "<html><body>502 Bad Gateway</body></html>")

	rec := &recorder{}
	pacer := &pacing.Counter{}
	res, err := newFlow(t, pacer, rec).Login(context.Background(), page, creds)

	require.NoError(t, err)
	assert.Equal(t, FormNotFound, res)
	assert.ErrorIs(t, res.Err(), ErrFormNotFound)
	assert.Equal(t, types.OutcomeFormNotFound, res.Outcome())
	assert.Len(t, page.Navigations, 2)
	assert.Empty(t, page.Fills)
	assert.Zero(t, pacer.Count())
	assert.Equal(t, []diagnostics.Point{diagnostics.LoginFormMissing}, rec.points)
}

func TestLoginRejected(t *testing.T) {
	page := browsertest.New().SetPage(loginURL, plainForm)
	page.OnClick(SubmitButton, func(p *browsertest.Page) { p.Load(loginURL, wrongPassword) })

	rec := &recorder{}
	res, err := newFlow(t, &pacing.Counter{}, rec).Login(context.Background(), page, creds)

	require.NoError(t, err)
	assert.Equal(t, NotLoggedIn, res)
	assert.Equal(t, types.OutcomeLoginFailed, res.Outcome())
	assert.Equal(t, []diagnostics.Point{diagnostics.AfterLogin, diagnostics.LoginFailed}, rec.points)
}

func TestLoginSubmitTimeoutStillChecksState(t *testing.T) {
	// The submit never navigates, but the page already shows a session.
	form := `<html><body><a>logout</a><input name="username"><input name="password">
<button type="submit">登录</button></body></html>`
	page := browsertest.New().SetPage(loginURL, form)

	res, err := newFlow(t, &pacing.Counter{}, &recorder{}).Login(context.Background(), page, creds)

	require.NoError(t, err)
	assert.Equal(t, LoggedIn, res)
}

func TestLoginWaitsOutChallenge(t *testing.T) {
	challengePage := `<html><head><title>Just a moment... | Cloudflare</title></head><body>Checking your browser</body></html>`
	page := browsertest.New().SetPage(loginURL, challengePage)
	page.OnWait(func(p *browsertest.Page, _ browser.Condition) { p.Load(loginURL, plainForm) })
	page.OnClick(SubmitButton, func(p *browsertest.Page) { p.Load("/", dashboard) })

	res, err := newFlow(t, &pacing.Counter{}, &recorder{}).Login(context.Background(), page, creds)

	require.NoError(t, err)
	assert.Equal(t, LoggedIn, res)
	assert.Len(t, page.Navigations, 1)
}

func TestLoginCancelled(t *testing.T) {
	page := browsertest.New().SetPage(loginURL, plainForm)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newFlow(t, &pacing.Counter{}, &recorder{}).Login(ctx, page, creds)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnsureCheckedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	page := browsertest.New().SetPage(loginURL, formWithCaptcha)
	require.NoError(t, page.Navigate(ctx, loginURL, 0))

	clicked, err := EnsureChecked(ctx, page, AgreeCheckbox)
	require.NoError(t, err)
	assert.True(t, clicked)

	clicked, err = EnsureChecked(ctx, page, AgreeCheckbox)
	require.NoError(t, err)
	assert.False(t, clicked)

	on, err := page.Checked(ctx, AgreeCheckbox)
	require.NoError(t, err)
	assert.True(t, on)
	assert.Len(t, page.Clicks, 1)
}

func TestEnsureCheckedMissingBox(t *testing.T) {
	ctx := context.Background()
	page := browsertest.New().SetPage(loginURL, dashboard)
	require.NoError(t, page.Navigate(ctx, loginURL, 0))

	clicked, err := EnsureChecked(ctx, page, AgreeCheckbox)
	require.NoError(t, err)
	assert.False(t, clicked)
}
