package browsertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/renewbot/internal/browser"
)

const form = `<html><head><title>Login</title></head><body>
<form>
  <input name="username">
  <input type="checkbox" name="agree">
  <input type="radio" name="month" value="1">
  <input type="radio" name="month" value="3" checked>
  <button id="go" type="submit">Login</button>
  <button class="btn primary">续费</button>
</form></body></html>`

func TestNavigateConsumesSequence(t *testing.T) {
	ctx := context.Background()
	p := New().SetPage("/a", "<body>first</body>", "<body>second</body>")

	require.NoError(t, p.Navigate(ctx, "/a", 0))
	s, _ := p.Snapshot(ctx)
	assert.Contains(t, s.Text, "first")

	require.NoError(t, p.Navigate(ctx, "/a", 0))
	require.NoError(t, p.Navigate(ctx, "/a", 0))
	s, _ = p.Snapshot(ctx)
	assert.Contains(t, s.Text, "second")
	assert.Equal(t, []string{"/a", "/a", "/a"}, p.Navigations)
}

func TestClickTogglesCheckboxAndRunsHooks(t *testing.T) {
	ctx := context.Background()
	p := New().SetPage("/login", form)
	require.NoError(t, p.Navigate(ctx, "/login", 0))

	var hooked int
	p.OnClick(".btn", func(*Page) { hooked++ })

	require.NoError(t, p.Click(ctx, browser.CSS(`input[name="agree"]`)))
	on, err := p.Checked(ctx, `input[name="agree"]`)
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, p.Click(ctx, browser.JS(`document.querySelectorAll("button")[1]`)))
	require.NoError(t, p.Click(ctx, browser.JS(`document.querySelector(".btn.primary")`)))
	assert.Equal(t, 2, hooked)

	err = p.Click(ctx, browser.JS(`document.getElementById("missing")`))
	assert.ErrorIs(t, err, browser.ErrNotFound)
}

func TestSelectRadio(t *testing.T) {
	ctx := context.Background()
	p := New().SetPage("/f", form)
	require.NoError(t, p.Navigate(ctx, "/f", 0))

	changed, err := p.SelectRadio(ctx, `input[name="month"]`, "1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = p.SelectRadio(ctx, `input[name="month"]`, "1")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = p.SelectRadio(ctx, `input[name="month"]`, "12")
	assert.ErrorIs(t, err, browser.ErrNotFound)
}

func TestSubmitWithoutNavigationTimesOut(t *testing.T) {
	ctx := context.Background()
	p := New().SetPage("/f", form)
	require.NoError(t, p.Navigate(ctx, "/f", 0))

	err := p.SubmitAndWaitNavigation(ctx, `button[type="submit"]`, 0)
	assert.True(t, browser.IsTimeout(err))

	p.OnClick("#go", func(p *Page) { p.Load("/home", "<body>ok</body>") })
	assert.NoError(t, p.SubmitAndWaitNavigation(ctx, `button[type="submit"]`, 0))
	assert.Equal(t, "/home", p.URL())
}

func TestDetachedTargetIsNotFound(t *testing.T) {
	ctx := context.Background()
	p := New().SetPage("/f", form).Detach(`document.getElementById("go")`)
	require.NoError(t, p.Navigate(ctx, "/f", 0))

	err := p.ClickAndWaitResponse(ctx, browser.JS(`document.getElementById("go")`), browser.ResponseMatch{URLContains: "/renew", Status: 200}, 0)
	assert.ErrorIs(t, err, browser.ErrNotFound)
	assert.False(t, browser.IsTimeout(err))
	assert.Empty(t, p.Clicks)

	ok, err := p.Exists(ctx, "#go")
	require.NoError(t, err)
	assert.True(t, ok)
}
