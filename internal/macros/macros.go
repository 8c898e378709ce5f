// Package macros runs named sequences of allow-listed actions.
package macros

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clawdesk/clawdesk/internal/apperr"
	"github.com/clawdesk/clawdesk/internal/config"
	"github.com/clawdesk/clawdesk/internal/events"
)

// DefaultStepTimeout bounds a single step.
const DefaultStepTimeout = 12 * time.Second

// Step statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Handler performs one action. input is the step's input, never nil.
type Handler func(ctx context.Context, input map[string]any) (any, error)

// Authorizer reports whether an action may run.
type Authorizer interface {
	IsAllowed(action string) bool
}

// EventLog records macro runs.
type EventLog interface {
	Log(typ string, payload any) (events.Record, error)
}

// StepResult is the outcome of one executed step.
type StepResult struct {
	Action     string `json:"action"`
	Status     string `json:"status"`
	DurationMs int64  `json:"durationMs"`
	Output     any    `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Report describes one macro run.
type Report struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Results []StepResult `json:"results"`
}

// Validate checks that m has at least one step and every step names an
// action.
func Validate(m config.Macro) error {
	return config.Check(m)
}

// Runner executes macros against a fixed action table.
type Runner struct {
	Actions     map[string]Handler
	Authorizer  Authorizer
	StepTimeout time.Duration
	Events      EventLog
	Logger      *slog.Logger

	now func() time.Time
}

// Run validates m, checks every step against the policy and the action
// table, and only then executes the steps in order. The first failing step
// aborts the run; its result is included in the report alongside the error.
func (r *Runner) Run(ctx context.Context, name string, m config.Macro) (*Report, error) {
	if err := Validate(m); err != nil {
		return nil, err
	}
	for _, step := range m.Steps {
		if r.Authorizer == nil || !r.Authorizer.IsAllowed(step.Action) {
			return nil, apperr.Policy("action not permitted: " + step.Action)
		}
		if r.Actions[step.Action] == nil {
			return nil, apperr.Validation("action not supported: " + step.Action)
		}
	}

	rep := &Report{ID: uuid.NewString(), Name: name, Results: make([]StepResult, 0, len(m.Steps))}
	for _, step := range m.Steps {
		res, err := r.step(ctx, step)
		rep.Results = append(rep.Results, res)
		if err != nil {
			r.log(events.TypeMacroStepError, map[string]any{
				"id": rep.ID, "name": name, "action": step.Action, "error": res.Error,
			})
			return rep, err
		}
	}
	r.log(events.TypeMacroRun, map[string]any{"id": rep.ID, "name": name, "steps": len(rep.Results)})
	return rep, nil
}

type outcome struct {
	out any
	err error
}

// step runs one handler under the step timeout. A handler that ignores its
// context is abandoned when the timeout fires.
func (r *Runner) step(ctx context.Context, step config.Step) (StepResult, error) {
	now := r.now
	if now == nil {
		now = time.Now
	}
	timeout := r.StepTimeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	input := step.Input
	if input == nil {
		input = map[string]any{}
	}

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := now()
	done := make(chan outcome, 1)
	go func() {
		out, err := r.Actions[step.Action](stepCtx, input)
		done <- outcome{out: out, err: err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-stepCtx.Done():
		o.err = stepCtx.Err()
	}
	if errors.Is(o.err, context.DeadlineExceeded) && ctx.Err() == nil {
		o.err = apperr.Timeout(fmt.Sprintf("step %s timed out after %s", step.Action, timeout))
	}

	res := StepResult{
		Action:     step.Action,
		Status:     StatusOK,
		DurationMs: now().Sub(started).Milliseconds(),
		Output:     o.out,
	}
	if o.err != nil {
		res.Status = StatusError
		res.Output = nil
		res.Error = o.err.Error()
	}
	return res, o.err
}

func (r *Runner) log(typ string, payload map[string]any) {
	if r.Events == nil {
		return
	}
	if _, err := r.Events.Log(typ, payload); err != nil && r.Logger != nil {
		r.Logger.Warn("recording macro event failed", "type", typ, "error", err)
	}
}
