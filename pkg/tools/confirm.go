package tools

import (
	"context"
	"time"
)

// ConfirmMode is the operator-level confirmation policy.
type ConfirmMode string

const (
	// ConfirmYes executes everything without asking.
	ConfirmYes ConfirmMode = "YES"
	// ConfirmNo asks for every tool call.
	ConfirmNo ConfirmMode = "NO"
	// ConfirmAuto asks only for mutating and privileged calls.
	ConfirmAuto ConfirmMode = "AUTO"
)

// Decision is the policy outcome before execution.
type Decision int

const (
	// DecisionExecute lets the call proceed without asking.
	DecisionExecute Decision = iota
	// DecisionAsk requires an explicit yes from the Asker.
	DecisionAsk
)

// Asker resolves a confirmation prompt with the operator. Implementations
// must respect ctx cancellation.
type Asker interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// AskerFunc adapts a function to the Asker interface.
type AskerFunc func(ctx context.Context, prompt string) (bool, error)

func (f AskerFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// ConfirmPolicy decides whether a tool call needs operator approval and
// collects it. With no Asker attached, ASK decisions deny after the
// timeout elapses, so unattended runs cannot hang on a prompt.
type ConfirmPolicy struct {
	Mode    ConfirmMode
	Asker   Asker
	Timeout time.Duration
}

func NewConfirmPolicy(mode string, timeoutSeconds int, asker Asker) *ConfirmPolicy {
	m := ConfirmMode(mode)
	switch m {
	case ConfirmYes, ConfirmNo, ConfirmAuto:
	default:
		m = ConfirmAuto
	}
	return &ConfirmPolicy{
		Mode:    m,
		Asker:   asker,
		Timeout: time.Duration(timeoutSeconds) * time.Second,
	}
}

// Decide classifies a call. escalated marks calls whose effective danger
// exceeds the tool's declared class, such as a read resolving outside
// the workspace.
func (p *ConfirmPolicy) Decide(danger DangerClass, escalated bool) Decision {
	switch p.Mode {
	case ConfirmYes:
		return DecisionExecute
	case ConfirmNo:
		return DecisionAsk
	default:
		if danger == DangerSafe && !escalated {
			return DecisionExecute
		}
		return DecisionAsk
	}
}

// Approve runs the confirmation exchange for an ASK decision. It returns
// false when the operator declines, is absent, or does not answer in
// time.
func (p *ConfirmPolicy) Approve(ctx context.Context, prompt string) bool {
	if p.Asker == nil {
		timer := time.NewTimer(p.Timeout)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		return false
	}

	askCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	ok, err := p.Asker.Confirm(askCtx, prompt)
	if err != nil {
		return false
	}
	return ok
}
