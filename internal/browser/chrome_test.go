package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
)

func TestClickErrorNeverReportsTimeout(t *testing.T) {
	for _, cause := range []error{
		context.DeadlineExceeded,
		fmt.Errorf("wait ready: %w", context.DeadlineExceeded),
		chromedp.ErrPollingTimeout,
	} {
		err := clickError("click #confirm", cause)
		assert.ErrorIs(t, err, ErrNotFound, cause.Error())
		assert.False(t, IsTimeout(err), cause.Error())
	}

	err := clickError("click #confirm", context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrNotFound))

	assert.NoError(t, clickError("click #confirm", nil))
}

func TestPresenceScript(t *testing.T) {
	assert.Equal(t, `document.querySelector("button.ok") !== null`, presenceScript(CSS("button.ok")))
	assert.Equal(t,
		`(() => { try { return (document.querySelectorAll("button")[1]) != null; } catch (e) { return false; } })()`,
		presenceScript(JS(`document.querySelectorAll("button")[1]`)))
}
