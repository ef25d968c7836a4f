package renewal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ibeckermayer/renewbot/internal/browser/browsertest"
	"github.com/ibeckermayer/renewbot/internal/pacing"
	"github.com/ibeckermayer/renewbot/internal/types"
)

const (
	detailURL = "https://freecloud.ltd/server/detail/SRV123"

	detailPage = `<html><body><h1>SRV123</h1>
<button class="btn btn-light">返回</button>
<button id="renew" class="btn btn-primary">续费</button>
</body></html>`

	noRenewPage = `<html><body><h1>SRV123</h1><button class="btn">返回</button></body></html>`

	dialogPage = `<html><body><h1>SRV123</h1>
<div class="modal">续费时长
  <input type="radio" name="month" value="1">
  <input type="radio" name="month" value="3" checked>
  <button class="btn btn-secondary">取消</button>
  <button class="btn btn-success">确定</button>
</div></body></html>`

	dialogWithoutConfirm = `<html><body><div class="modal">续费时长
  <input type="radio" name="month" value="1"><button class="btn">取消</button></div></body></html>`

	successPage = `<html><body><div class="alert">续费成功</div></body></html>`
	blankResult = `<html><body><h1>SRV123</h1></body></html>`
)

func newFlow(t *testing.T, pacer pacing.Pauser) *Flow {
	return NewFlow(DefaultOptions("https://freecloud.ltd/server/detail/{id}"), pacer, zaptest.NewLogger(t))
}

func scripted(detail, dialog, result string, respond bool) *browsertest.Page {
	page := browsertest.New().SetPage(detailURL, detail)
	page.OnClick("#renew", func(p *browsertest.Page) { p.Load(detailURL, dialog) })
	page.OnClick("button.btn-success", func(p *browsertest.Page) {
		if respond {
			p.Respond("https://freecloud.ltd/server/detail/SRV123/renew", 200)
		}
		p.Load(detailURL, result)
	})
	return page
}

func TestRenewSuccess(t *testing.T) {
	page := scripted(detailPage, dialogPage, successPage, true)
	pacer := &pacing.Counter{}

	outcome, err := newFlow(t, pacer).Renew(context.Background(), page, "SRV123", 1)

	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSuccess, outcome)
	assert.Equal(t, []string{detailURL}, page.Navigations)
	assert.Equal(t, []string{
		`document.getElementById("renew")`,
		`document.querySelector("button.btn.btn-success")`,
	}, page.Clicks)
	assert.Contains(t, page.Calls, `select input[name="month"]=1`)
	assert.Equal(t, 3, pacer.Count())
}

func TestRenewUncertain(t *testing.T) {
	page := scripted(detailPage, dialogPage, blankResult, true)

	outcome, err := newFlow(t, &pacing.Counter{}).Renew(context.Background(), page, "SRV123", 2)

	require.NoError(t, err)
	assert.Equal(t, types.OutcomeUncertain, outcome)
}

func TestRenewResponseTimeoutTolerated(t *testing.T) {
	page := scripted(detailPage, dialogPage, successPage, false)

	outcome, err := newFlow(t, &pacing.Counter{}).Renew(context.Background(), page, "SRV123", 0)

	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSuccess, outcome)
}

func TestRenewControlNotFound(t *testing.T) {
	page := scripted(noRenewPage, dialogPage, successPage, true)

	outcome, err := newFlow(t, &pacing.Counter{}).Renew(context.Background(), page, "SRV123", 1)

	require.NoError(t, err)
	assert.Equal(t, types.OutcomeRenewControlNotFound, outcome)
	assert.Empty(t, page.Clicks)
}

func TestConfirmControlNotFound(t *testing.T) {
	page := scripted(detailPage, dialogWithoutConfirm, successPage, true)

	outcome, err := newFlow(t, &pacing.Counter{}).Renew(context.Background(), page, "SRV123", 1)

	require.NoError(t, err)
	assert.Equal(t, types.OutcomeConfirmControlNotFound, outcome)
	assert.Len(t, page.Clicks, 1)
}

func TestConfirmClickThatNeverLandsIsNotSubmitted(t *testing.T) {
	page := scripted(detailPage, dialogPage, successPage, true)
	page.Detach(`document.querySelector("button.btn.btn-success")`)

	outcome, err := newFlow(t, &pacing.Counter{}).Renew(context.Background(), page, "SRV123", 1)

	require.NoError(t, err)
	assert.Equal(t, types.OutcomeConfirmControlNotFound, outcome)
	assert.Equal(t, []string{`document.getElementById("renew")`}, page.Clicks)
}

func TestRenewClickThatNeverLands(t *testing.T) {
	page := scripted(detailPage, dialogPage, successPage, true)
	page.Detach(`document.getElementById("renew")`)

	outcome, err := newFlow(t, &pacing.Counter{}).Renew(context.Background(), page, "SRV123", 1)

	require.NoError(t, err)
	assert.Equal(t, types.OutcomeRenewControlNotFound, outcome)
	assert.Empty(t, page.Clicks)
}

func TestRenewDialogTimeoutTolerated(t *testing.T) {
	// The renew click shows nothing; the flow proceeds and fails to find a confirm.
	page := browsertest.New().SetPage(detailURL, detailPage)

	outcome, err := newFlow(t, &pacing.Counter{}).Renew(context.Background(), page, "SRV123", 1)

	require.NoError(t, err)
	assert.Equal(t, types.OutcomeConfirmControlNotFound, outcome)
	assert.Contains(t, page.Calls, "wait")
}

func TestRenewCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := newFlow(t, &pacing.Counter{}).Renew(ctx, browsertest.New(), "SRV123", 1)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.OutcomeFailed, outcome)
}

func TestURLFor(t *testing.T) {
	o := DefaultOptions("https://freecloud.ltd/server/detail/{id}")
	assert.Equal(t, detailURL, o.URLFor("SRV123"))
}
