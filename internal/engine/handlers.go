// internal/engine/handlers.go
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/locus/internal/classifier"
	"github.com/xkilldash9x/locus/internal/command"
	"github.com/xkilldash9x/locus/internal/executor"
	"github.com/xkilldash9x/locus/internal/profile"
	"github.com/xkilldash9x/locus/internal/protocol"
	"github.com/xkilldash9x/locus/internal/scanner"
	"github.com/xkilldash9x/locus/internal/telemetry"
)

// ErrUnknownIntent is returned for ENGINE_EXECUTE requests naming no known intent.
var ErrUnknownIntent = errors.New("unknown intent")

// Intents accepted by ENGINE_EXECUTE.
const (
	IntentCommand     = "command"
	IntentAction      = "action"
	IntentBatch       = "batch"
	IntentScan        = "scan"
	IntentCaptureForm = "capture_form"
	IntentRestoreForm = "restore_form"
	IntentAutofill    = "autofill"
	IntentTelemetry   = "telemetry"
)

// ExecuteRequest is the ENGINE_EXECUTE payload.
type ExecuteRequest struct {
	Intent string          `json:"intent"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Options apply to one action or batch request.
type Options struct {
	// Profile switches the profile values are read from before running.
	Profile string `json:"profile,omitempty"`
}

type actionRequest struct {
	Action  executor.Descriptor `json:"action"`
	Options Options             `json:"options"`
}

type batchRequest struct {
	Actions []executor.Descriptor `json:"actions"`
	Options Options               `json:"options"`
}

type commandRequest struct {
	Text    string  `json:"text"`
	Options Options `json:"options"`
}

// CommandResult is the outcome of a natural-language command.
type CommandResult struct {
	executor.BatchResult
	Command command.Command `json:"command"`
}

// ScanResult answers ENGINE_SCAN.
type ScanResult struct {
	OK   bool              `json:"ok"`
	Scan *scanner.Snapshot `json:"scan"`
}

// ActionResult answers EXECUTE_ACTION. Results holds the single action's result.
type ActionResult struct {
	Success bool              `json:"success"`
	Results []executor.Result `json:"results"`
}

func actionResult(res executor.Result) ActionResult {
	return ActionResult{Success: res.Success, Results: []executor.Result{res}}
}

// TelemetryReport is the telemetry intent's answer.
type TelemetryReport struct {
	Entries []telemetry.Entry         `json:"entries"`
	Stats   []telemetry.StrategyStats `json:"stats"`
}

type profileRequest struct {
	Name   string                             `json:"name"`
	Values map[classifier.SemanticType]string `json:"values,omitempty"`
}

// Install registers the engine's handlers on r. It may be called once per engine.
func (e *Engine) Install(r *protocol.Router) error {
	if !e.installed.CompareAndSwap(false, true) {
		return ErrAlreadyInstalled
	}
	handlers := map[protocol.Type]protocol.Handler{
		protocol.TypeEngineExecute: e.handleExecute,
		protocol.TypeEngineScan:    e.handleScan,
		protocol.TypeExecuteAction: e.handleAction,
		protocol.TypeExecuteBatch:  e.handleBatch,
		protocol.TypeQueryState:    e.handleState,
		protocol.TypeLoadFormData:  e.handleLoadProfile,
		protocol.TypeSaveFormData:  e.handleSaveProfile,
		protocol.TypeListProfiles:  e.handleListProfiles,
	}
	for t, h := range handlers {
		if err := r.Handle(t, h); err != nil {
			return err
		}
	}
	e.logger.Debug("Handlers installed.", zap.Int("count", len(handlers)))
	return nil
}

func (e *Engine) handleExecute(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req ExecuteRequest
	if err := protocol.DecodePayload(payload, &req); err != nil {
		return nil, err
	}
	return e.Execute(ctx, req)
}

// Execute runs one ENGINE_EXECUTE intent.
func (e *Engine) Execute(ctx context.Context, req ExecuteRequest) (interface{}, error) {
	e.logger.Debug("Executing intent.", zap.String("intent", req.Intent))
	switch req.Intent {
	case IntentCommand:
		var in commandRequest
		if err := protocol.DecodePayload(req.Data, &in); err != nil {
			return nil, err
		}
		return e.RunCommand(ctx, in.Text, in.Options)
	case IntentAction:
		return e.handleAction(ctx, req.Data)
	case IntentBatch:
		return e.handleBatch(ctx, req.Data)
	case IntentScan:
		return e.handleScan(ctx, nil)
	case IntentCaptureForm:
		return e.forms.CaptureAndSave(ctx)
	case IntentRestoreForm:
		report, found, err := e.forms.RestoreSaved(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"found": found, "report": report}, nil
	case IntentAutofill:
		var opts Options
		if err := protocol.DecodePayload(req.Data, &opts); err != nil {
			return nil, err
		}
		e.apply(opts)
		return e.executor.Autofill(ctx), nil
	case IntentTelemetry:
		return e.TelemetryReport(ctx)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, req.Intent)
}

// RunCommand parses and runs a natural-language command. Unparsable text is a Go error; a
// command that fails while running is reported in the result.
func (e *Engine) RunCommand(ctx context.Context, text string, opts Options) (CommandResult, error) {
	cmd, err := command.Parse(text)
	if err != nil {
		return CommandResult{}, err
	}
	e.apply(opts)
	var res executor.BatchResult
	e.executor.Hold(func(h executor.Held) {
		res = cmd.Run(ctx, h)
	})
	return CommandResult{BatchResult: res, Command: cmd}, nil
}

// TelemetryReport returns the live telemetry entries and per-strategy stats.
func (e *Engine) TelemetryReport(ctx context.Context) (TelemetryReport, error) {
	entries, err := e.telemetry.Entries(ctx)
	if err != nil {
		return TelemetryReport{}, err
	}
	stats, err := e.telemetry.Stats(ctx)
	if err != nil {
		return TelemetryReport{}, err
	}
	return TelemetryReport{Entries: entries, Stats: stats}, nil
}

func (e *Engine) apply(opts Options) {
	if opts.Profile != "" {
		e.active.Use(opts.Profile)
	}
}

func (e *Engine) handleScan(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	snap, err := e.Scan(ctx)
	if err != nil {
		return nil, err
	}
	return ScanResult{OK: true, Scan: snap}, nil
}

func (e *Engine) handleAction(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req actionRequest
	if err := protocol.DecodePayload(payload, &req); err != nil {
		return nil, err
	}
	a, err := executor.Decode(req.Action)
	if err != nil {
		return actionResult(executor.Failure(executor.Kind(req.Action.Type), err)), nil
	}
	e.apply(req.Options)
	return actionResult(e.executor.Execute(ctx, a)), nil
}

func (e *Engine) handleBatch(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req batchRequest
	if err := protocol.DecodePayload(payload, &req); err != nil {
		return nil, err
	}
	actions, err := executor.DecodeAll(req.Actions)
	if err != nil {
		return executor.BatchResult{
			TotalSteps: len(req.Actions),
			Results:    []executor.Result{executor.Failure("", err)},
		}, nil
	}
	e.apply(req.Options)
	return e.executor.ExecuteBatch(ctx, actions), nil
}

func (e *Engine) handleState(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	return e.State(ctx)
}

func (e *Engine) handleLoadProfile(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req profileRequest
	if err := protocol.DecodePayload(payload, &req); err != nil {
		return nil, err
	}
	return e.profiles.Load(ctx, req.Name)
}

func (e *Engine) handleSaveProfile(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req profileRequest
	if err := protocol.DecodePayload(payload, &req); err != nil {
		return nil, err
	}
	if err := e.profiles.Save(ctx, profile.Profile{Name: req.Name, Values: req.Values}); err != nil {
		return nil, err
	}
	return map[string]interface{}{"ok": true, "name": req.Name}, nil
}

func (e *Engine) handleListProfiles(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	names, err := e.profiles.List(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"profiles": names}, nil
}
