package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration. It is loaded once at start
// and not modified during a run.
type Config struct {
	Version     int               `toml:"version"`
	Account     AccountConfig     `toml:"account"`
	Site        SiteConfig        `toml:"site"`
	Renewal     RenewalConfig     `toml:"renewal"`
	Browser     BrowserConfig     `toml:"browser"`
	Pacing      PacingConfig      `toml:"pacing"`
	Notify      NotifyConfig      `toml:"notify"`
	Diagnostics DiagnosticsConfig `toml:"diagnostics"`
	History     HistoryConfig     `toml:"history"`
	Schedule    ScheduleConfig    `toml:"schedule"`
	Log         LogConfig         `toml:"log"`
}

type AccountConfig struct {
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	MachineID string `toml:"machine_id"`
}

type SiteConfig struct {
	Name    string `toml:"name"`
	BaseURL string `toml:"base_url"`
	Login   string `toml:"login_path"`
	List    string `toml:"list_path"`
	// Detail contains "{id}" where the machine id goes.
	Detail string `toml:"detail_path"`
}

type RenewalConfig struct {
	ThresholdDays int    `toml:"threshold_days"`
	Duration      string `toml:"duration"`
}

// BrowserConfig timeouts are in seconds.
type BrowserConfig struct {
	Headless         bool   `toml:"headless"`
	RemoteURL        string `toml:"remote_url"`
	UserAgent        string `toml:"user_agent"`
	WindowWidth      int    `toml:"window_width"`
	WindowHeight     int    `toml:"window_height"`
	ActionTimeout    int    `toml:"action_timeout"`
	LoginTimeout     int    `toml:"login_timeout"`
	FormTimeout      int    `toml:"form_timeout"`
	ChallengeTimeout int    `toml:"challenge_timeout"`
	SubmitTimeout    int    `toml:"submit_timeout"`
	PageTimeout      int    `toml:"page_timeout"`
	DialogTimeout    int    `toml:"dialog_timeout"`
	ResponseTimeout  int    `toml:"response_timeout"`
}

type PacingConfig struct {
	MinDelayMS int `toml:"min_delay_ms"`
	MaxDelayMS int `toml:"max_delay_ms"`
}

type NotifyConfig struct {
	// Provider is "telegram", "smtp" or "none".
	Provider string         `toml:"provider"`
	Telegram TelegramConfig `toml:"telegram"`
	SMTP     SMTPConfig     `toml:"smtp"`
}

type TelegramConfig struct {
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
	APIBase  string `toml:"api_base"`
}

type SMTPConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	User string `toml:"user"`
	Pass string `toml:"pass"`
	From string `toml:"from_address"`
	To   string `toml:"to_address"`
}

type DiagnosticsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Dir       string `toml:"dir"`
	HTMLLimit int    `toml:"html_limit"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	DBPath  string `toml:"db_path"`
}

type ScheduleConfig struct {
	Enabled    bool   `toml:"enabled"`
	Cron       string `toml:"cron"`
	Timezone   string `toml:"timezone"`
	RunTimeout int    `toml:"run_timeout_minutes"`
}

type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Site: SiteConfig{
			Name:    "Freecloud",
			BaseURL: "https://freecloud.ltd",
			Login:   "/login",
			List:    "/server/lxc",
			Detail:  "/server/detail/{id}",
		},
		Renewal: RenewalConfig{
			ThresholdDays: 3,
			Duration:      "1",
		},
		Browser: BrowserConfig{
			Headless:         true,
			WindowWidth:      1920,
			WindowHeight:     1080,
			ActionTimeout:    15,
			LoginTimeout:     60,
			FormTimeout:      10,
			ChallengeTimeout: 30,
			SubmitTimeout:    60,
			PageTimeout:      30,
			DialogTimeout:    10,
			ResponseTimeout:  10,
		},
		Pacing: PacingConfig{
			MinDelayMS: 1000,
			MaxDelayMS: 3000,
		},
		Notify: NotifyConfig{
			Provider: "telegram",
			SMTP:     SMTPConfig{Port: 587},
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:   true,
			HTMLLimit: 500,
		},
		History: HistoryConfig{
			Enabled: true,
		},
		Schedule: ScheduleConfig{
			Cron:       "0 8 * * *",
			Timezone:   "Asia/Shanghai",
			RunTimeout: 10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "renewbot"), nil
}

// ConfigPath returns the full path to the default config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DataDir returns the directory for run history and diagnostics
func DataDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "renewbot"), nil
}

// Load reads config from path on top of the defaults. An empty path means
// ConfigPath(); a missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes config to path, creating its directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}

// Env variable names read by ApplyEnv.
const (
	EnvUsername  = "FC_USERNAME"
	EnvPassword  = "FC_PASSWORD"
	EnvMachineID = "FC_MACHINE_ID"
	EnvBotToken  = "TELEGRAM_BOT_TOKEN"
	EnvChatID    = "TELEGRAM_CHAT_ID"
	EnvDebug     = "DEBUG_MODE"
)

// EnvVars lists the environment inputs, in the order they are reported.
var EnvVars = []string{EnvUsername, EnvPassword, EnvMachineID, EnvBotToken, EnvChatID}

// ApplyEnv overlays non-empty environment values returned by lookup
// (usually os.LookupEnv) onto the config.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.Account.Username, EnvUsername)
	set(&c.Account.Password, EnvPassword)
	set(&c.Account.MachineID, EnvMachineID)
	set(&c.Notify.Telegram.BotToken, EnvBotToken)
	set(&c.Notify.Telegram.ChatID, EnvChatID)

	if v, ok := lookup(EnvDebug); ok {
		if debug, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil && debug {
			c.Log.Level = "debug"
		}
	}
}

// Validate checks the inputs a run cannot do without.
func (c *Config) Validate() error {
	var problems []string
	if c.Account.Username == "" {
		problems = append(problems, "account.username ("+EnvUsername+") is required")
	}
	if c.Account.Password == "" {
		problems = append(problems, "account.password ("+EnvPassword+") is required")
	}
	if c.Account.MachineID == "" {
		problems = append(problems, "account.machine_id ("+EnvMachineID+") is required")
	}
	if c.Site.BaseURL == "" {
		problems = append(problems, "site.base_url is required")
	}
	if !strings.Contains(c.Site.Detail, "{id}") {
		problems = append(problems, "site.detail_path must contain {id}")
	}
	if c.Renewal.ThresholdDays < 0 {
		problems = append(problems, "renewal.threshold_days must not be negative")
	}
	if c.Pacing.MinDelayMS < 0 || c.Pacing.MaxDelayMS < c.Pacing.MinDelayMS {
		problems = append(problems, "pacing window must satisfy 0 <= min_delay_ms <= max_delay_ms")
	}
	if c.Schedule.Enabled && c.Schedule.Cron == "" {
		problems = append(problems, "schedule.cron is required when the schedule is enabled")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// LoginURL returns the absolute login page URL.
func (c *Config) LoginURL() string { return c.url(c.Site.Login) }

// ListURL returns the absolute server list URL.
func (c *Config) ListURL() string { return c.url(c.Site.List) }

// DetailURL returns the absolute detail page URL template.
func (c *Config) DetailURL() string { return c.url(c.Site.Detail) }

// Host returns the site host, used to filter logged responses.
func (c *Config) Host() string {
	h := strings.TrimPrefix(strings.TrimPrefix(c.Site.BaseURL, "https://"), "http://")
	if i := strings.IndexByte(h, '/'); i >= 0 {
		h = h[:i]
	}
	return h
}

func (c *Config) url(path string) string {
	return strings.TrimRight(c.Site.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// Seconds converts a timeout field to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// DiagnosticsDir returns the configured artifact directory or the default
// one under DataDir.
func (c *Config) DiagnosticsDir() (string, error) {
	if c.Diagnostics.Dir != "" {
		return c.Diagnostics.Dir, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "diagnostics"), nil
}

// HistoryPath returns the configured database path or the default one.
func (c *Config) HistoryPath() (string, error) {
	if c.History.DBPath != "" {
		return c.History.DBPath, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// Mask hides all but the first and last two characters of a secret.
func Mask(v string) string {
	r := []rune(v)
	if len(r) <= 4 {
		return "****"
	}
	return string(r[:2]) + strings.Repeat("*", len(r)-4) + string(r[len(r)-2:])
}
