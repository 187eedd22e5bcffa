package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/locus/internal/browser"
	"github.com/xkilldash9x/locus/internal/browser/dom"
	"github.com/xkilldash9x/locus/internal/browser/memory"
	"github.com/xkilldash9x/locus/internal/executor"
	"github.com/xkilldash9x/locus/internal/profile"
	"github.com/xkilldash9x/locus/internal/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const signupHTML = `<html><head><title>Sign up</title></head><body><form id="signup">
	<label for="email">Email address</label><input id="email" name="email">
	<label for="first">First name</label><input id="first" name="first_name">
	<button id="submit" type="submit">Create account</button>
</form></body></html>`

type fixture struct {
	engine *Engine
	router *protocol.Router
	page   *memory.Page
}

func setup(t *testing.T) fixture {
	t.Helper()
	page, err := memory.NewPage(signupHTML, "https://app.test/signup", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(page.Close)

	cfg := DefaultConfig()
	cfg.Humanoid.Enabled = false
	cfg.Executor.Highlight = false
	cfg.Executor.RecoveryWaitBudget = 100 * time.Millisecond
	cfg.Recovery.ChangeWaitTimeout = 100 * time.Millisecond

	e, err := New(cfg, Deps{Page: page, Registerer: prometheus.NewRegistry(), Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	t.Cleanup(e.Close)

	r := protocol.NewRouter(zaptest.NewLogger(t))
	require.NoError(t, e.Install(r))
	return fixture{engine: e, router: r, page: page}
}

func (fx fixture) call(t *testing.T, typ protocol.Type, payload interface{}, out interface{}) protocol.Response {
	t.Helper()
	req, err := protocol.NewRequest(typ, payload)
	require.NoError(t, err)
	resp := fx.router.Dispatch(context.Background(), req)
	require.Equal(t, req.ID, resp.ID)
	if out != nil && resp.OK {
		require.NoError(t, json.Unmarshal(resp.Payload, out))
	}
	return resp
}

func value(t *testing.T, p *memory.Page, sel string) string {
	t.Helper()
	v, err := p.ReadValue(context.Background(), browser.Target{Selector: sel})
	require.NoError(t, err)
	return v
}

func TestInstall_Once(t *testing.T) {
	fx := setup(t)
	assert.ErrorIs(t, fx.engine.Install(fx.router), ErrAlreadyInstalled)
	assert.Len(t, fx.router.Types(), 8)

	_, err := New(DefaultConfig(), Deps{})
	assert.Error(t, err)
}

func TestScanAndState(t *testing.T) {
	fx := setup(t)

	var scan ScanResult
	resp := fx.call(t, protocol.TypeEngineScan, nil, &scan)
	require.True(t, resp.OK, resp.Error)
	assert.True(t, scan.OK)
	assert.Len(t, scan.Scan.Fields, 2)
	assert.Len(t, scan.Scan.Actionables, 1)

	var info browser.PageInfo
	resp = fx.call(t, protocol.TypeQueryState, nil, &info)
	require.True(t, resp.OK, resp.Error)
	assert.Equal(t, "https://app.test/signup", info.URL)
	assert.Equal(t, "Sign up", info.Title)
}

func TestExecute_ActionAndBatch(t *testing.T) {
	fx := setup(t)
	v := "ann@example.com"

	var res ActionResult
	resp := fx.call(t, protocol.TypeExecuteAction, map[string]interface{}{
		"action": executor.Descriptor{Type: "fill", Selector: "#email", Value: &v},
	}, &res)
	require.True(t, resp.OK, resp.Error)
	assert.True(t, res.Success)
	require.Len(t, res.Results, 1)
	assert.True(t, res.Results[0].Success, res.Results[0].Error)
	assert.Equal(t, executor.KindFill, res.Results[0].Action)
	assert.Equal(t, v, value(t, fx.page, "#email"))
	assert.Contains(t, string(resp.Payload), `"results":[`)

	var batch executor.BatchResult
	resp = fx.call(t, protocol.TypeExecuteBatch, map[string]interface{}{
		"actions": []executor.Descriptor{{Type: "click", Selector: "#submit"}, {Type: "teleport"}},
	}, &batch)
	require.True(t, resp.OK, resp.Error)
	assert.False(t, batch.Success)
	assert.Zero(t, batch.ExecutedSteps, "undecodable batches run nothing")
	assert.Equal(t, 2, batch.TotalSteps)

	res = ActionResult{}
	resp = fx.call(t, protocol.TypeExecuteAction, map[string]interface{}{
		"action": executor.Descriptor{Type: "click", Selector: "#missing"},
	}, &res)
	require.True(t, resp.OK)
	assert.False(t, res.Success)
	require.Len(t, res.Results, 1)
	assert.NotEmpty(t, res.Results[0].Error)

	res = ActionResult{}
	resp = fx.call(t, protocol.TypeExecuteAction, map[string]interface{}{
		"action": executor.Descriptor{Type: "teleport"},
	}, &res)
	require.True(t, resp.OK)
	assert.False(t, res.Success)
	require.Len(t, res.Results, 1)
	assert.NotEmpty(t, res.Results[0].Error)
}

func TestExecute_CommandIntent(t *testing.T) {
	fx := setup(t)

	var out CommandResult
	resp := fx.call(t, protocol.TypeEngineExecute, ExecuteRequest{
		Intent: IntentCommand,
		Data:   json.RawMessage(`{"text":"Fil email with bob@corp.test then clik #submit"}`),
	}, &out)
	require.True(t, resp.OK, resp.Error)
	assert.True(t, out.Success, "%+v", out.Results)
	assert.Equal(t, 2, out.ExecutedSteps)
	assert.Equal(t, "bob@corp.test", value(t, fx.page, "#email"))

	resp = fx.call(t, protocol.TypeEngineExecute, ExecuteRequest{
		Intent: IntentCommand,
		Data:   json.RawMessage(`{"text":"dance wildly"}`),
	}, nil)
	assert.False(t, resp.OK)

	resp = fx.call(t, protocol.TypeEngineExecute, ExecuteRequest{Intent: "levitate"}, nil)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, ErrUnknownIntent.Error())
}

func TestProfilesAndAutofill(t *testing.T) {
	fx := setup(t)

	resp := fx.call(t, protocol.TypeSaveFormData, map[string]interface{}{
		"name":   "ann",
		"values": map[string]string{"email": "ann@example.com", "firstName": "Ann"},
	}, nil)
	require.True(t, resp.OK, resp.Error)

	var list struct {
		Profiles []string `json:"profiles"`
	}
	resp = fx.call(t, protocol.TypeListProfiles, nil, &list)
	require.True(t, resp.OK, resp.Error)
	assert.Equal(t, []string{"ann"}, list.Profiles)

	var p profile.Profile
	resp = fx.call(t, protocol.TypeLoadFormData, map[string]string{"name": "ann"}, &p)
	require.True(t, resp.OK, resp.Error)
	assert.Equal(t, "Ann", p.Values["firstName"])

	resp = fx.call(t, protocol.TypeLoadFormData, map[string]string{"name": "bob"}, nil)
	assert.False(t, resp.OK)

	var batch executor.BatchResult
	resp = fx.call(t, protocol.TypeEngineExecute, ExecuteRequest{
		Intent: IntentAutofill,
		Data:   json.RawMessage(`{"profile":"ann"}`),
	}, &batch)
	require.True(t, resp.OK, resp.Error)
	assert.True(t, batch.Success, "%+v", batch.Results)
	assert.Equal(t, "ann@example.com", value(t, fx.page, "#email"))
	assert.Equal(t, "Ann", value(t, fx.page, "#first"))
}

func TestFormCaptureAndRestore(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	require.NoError(t, fx.page.SetValue(ctx, browser.Target{Selector: "#first"}, "Ann"))

	resp := fx.call(t, protocol.TypeEngineExecute, ExecuteRequest{Intent: IntentCaptureForm}, nil)
	require.True(t, resp.OK, resp.Error)

	require.NoError(t, fx.page.Mutate(func(doc *dom.Document) error {
		n, _ := doc.QueryOne(nil, "#first")
		doc.SetValue(n, "")
		return nil
	}))

	var out struct {
		Found  bool `json:"found"`
		Report struct {
			Restored int `json:"restored"`
		} `json:"report"`
	}
	resp = fx.call(t, protocol.TypeEngineExecute, ExecuteRequest{Intent: IntentRestoreForm}, &out)
	require.True(t, resp.OK, resp.Error)
	assert.True(t, out.Found)
	assert.Equal(t, 1, out.Report.Restored)
	assert.Equal(t, "Ann", value(t, fx.page, "#first"))
}

func TestTelemetryIntent_RecordsRecovery(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	_, err := fx.engine.Scan(ctx)
	require.NoError(t, err)

	require.NoError(t, fx.page.Mutate(func(doc *dom.Document) error {
		in, _ := doc.QueryOne(nil, "#email")
		label, _ := doc.QueryOne(nil, "label")
		dom.SetAttr(in, "id", "contact-email-v2")
		dom.SetAttr(in, "name", "contact_email")
		dom.SetAttr(label, "for", "contact-email-v2")
		return nil
	}))

	v := "ann@example.com"
	var out ActionResult
	resp := fx.call(t, protocol.TypeExecuteAction, map[string]interface{}{
		"action": executor.Descriptor{Type: "fill", Selector: "#email", Hints: map[string]string{"label": "Email address"}, Value: &v},
	}, &out)
	require.True(t, resp.OK, resp.Error)
	require.Len(t, out.Results, 1)
	res := out.Results[0]
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "#contact-email-v2", res.Target)

	var report TelemetryReport
	resp = fx.call(t, protocol.TypeEngineExecute, ExecuteRequest{Intent: IntentTelemetry}, &report)
	require.True(t, resp.OK, resp.Error)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, res.Resolution, report.Entries[0].Strategy)
	require.NotEmpty(t, report.Stats)
}

func TestAutoCapture(t *testing.T) {
	page, err := memory.NewPage(signupHTML, "https://app.test/signup", zaptest.NewLogger(t))
	require.NoError(t, err)
	defer page.Close()

	cfg := DefaultConfig()
	cfg.AutoCapture = true
	cfg.FormState.Debounce = 20 * time.Millisecond
	e, err := New(cfg, Deps{Page: page})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	e.Start(ctx)
	require.NoError(t, page.SetValue(ctx, browser.Target{Selector: "#first"}, "Ann"))
	e.Close()

	report, ok, err := e.Forms().RestoreSaved(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, report.Restored, "the live field still holds its value")
}
