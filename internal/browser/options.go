// Package browser provides the chromedp-backed page driver used by the
// renewal pipeline, with shared anti-bot-detection configuration.
package browser

import (
	"time"

	"github.com/chromedp/chromedp"
)

// DefaultUserAgent is a realistic Chrome user agent
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Options configures how the browser is started.
type Options struct {
	Headless bool

	// RemoteURL attaches to an already running Chrome (ws:// or http://host:9222)
	// instead of launching a new process.
	RemoteURL string

	UserAgent    string
	WindowWidth  int
	WindowHeight int

	// ActionTimeout bounds single actions (click, fill, evaluate) that have
	// no explicit timeout of their own.
	ActionTimeout time.Duration
}

// DefaultOptions returns headless options sized like a desktop browser.
func DefaultOptions() Options {
	return Options{
		Headless:      true,
		UserAgent:     DefaultUserAgent,
		WindowWidth:   1920,
		WindowHeight:  1080,
		ActionTimeout: 15 * time.Second,
	}
}

// AllocatorOptions returns chromedp allocator options with anti-bot-detection measures.
// All browser instances should use this to ensure consistent stealth configuration.
func AllocatorOptions(o Options) []chromedp.ExecAllocatorOption {
	ua := o.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	width, height := o.WindowWidth, o.WindowHeight
	if width <= 0 || height <= 0 {
		width, height = 1920, 1080
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", o.Headless),

		// Prevent navigator.webdriver = true detection
		chromedp.Flag("disable-blink-features", "AutomationControlled"),

		chromedp.UserAgent(ua),
		chromedp.WindowSize(width, height),

		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-accelerated-2d-canvas", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("lang", "zh-CN"),
	)

	if o.Headless {
		opts = append(opts, chromedp.Flag("disable-gpu", true))
	}

	return opts
}

// stealthScript runs before any page script on every new document.
const stealthScript = `
(() => {
	try { delete Object.getPrototypeOf(navigator).webdriver; } catch (e) {}
	window.chrome = window.chrome || {
		runtime: {},
		loadTimes: function() {},
		csi: function() {},
		app: { isInstalled: false },
	};
	Object.defineProperty(navigator, 'languages', { get: () => ['zh-CN', 'zh', 'en-US', 'en'] });
	Object.defineProperty(navigator, 'plugins', {
		get: () => [{
			0: { type: 'application/x-google-chrome-pdf' },
			description: 'Portable Document Format',
			filename: 'internal-pdf-viewer',
			length: 1,
			name: 'Chrome PDF Plugin',
		}],
	});
})();
`
