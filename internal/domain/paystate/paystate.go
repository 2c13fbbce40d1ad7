// Package paystate implements the per-payment state machine:
// INITIAL -> IN_PROGRESS -> {COMPLETED|FAILED}, with CANCELLED
// reachable from INITIAL or IN_PROGRESS. Terminal states are
// absorbing.
package paystate

import (
	"time"

	"github.com/paymentfabric/slashpay-engine/internal/corerr"
)

type InternalState string

const (
	StateInitial    InternalState = "INITIAL"
	StateInProgress InternalState = "IN_PROGRESS"
	StateCompleted  InternalState = "COMPLETED"
	StateFailed     InternalState = "FAILED"
	StateCancelled  InternalState = "CANCELLED"
)

func (s InternalState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

type RunState string

const (
	RunSubmitted RunState = "SUBMITTED"
	RunFailed    RunState = "FAILED"
	RunSuccess   RunState = "SUCCESS"
)

type PluginRun struct {
	Name    string
	StartAt time.Time
	EndAt   *time.Time
	State   RunState
}

// PaymentState is the state machine embedded in each outgoing payment.
// now is injected so transitions are deterministic in tests and
// reproducible across a restart-and-resume.
type PaymentState struct {
	InternalState     InternalState
	PendingPlugins    []string
	TriedPlugins      []PluginRun
	CurrentPlugin     *PluginRun
	CompletedByPlugin *PluginRun
}

// New builds the INITIAL state for an outgoing payment's sendingPriority.
func New(sendingPriority []string) (*PaymentState, error) {
	if sendingPriority == nil {
		return nil, corerr.ErrPendingNotSlice
	}
	pending := make([]string, len(sendingPriority))
	copy(pending, sendingPriority)
	return &PaymentState{
		InternalState:  StateInitial,
		PendingPlugins: pending,
	}, nil
}

// Cancel transitions INITIAL or IN_PROGRESS to CANCELLED.
func (s *PaymentState) Cancel(now time.Time) error {
	switch s.InternalState {
	case StateInitial, StateInProgress:
		s.InternalState = StateCancelled
		s.CurrentPlugin = nil
		return nil
	default:
		return corerr.InvalidState(string(s.InternalState))
	}
}

// Process drives the state from INITIAL by engaging the first pending
// plugin, or from IN_PROGRESS with no current plugin by engaging the
// next pending one, failing the payment if none remain. It returns
// true if a plugin was engaged, false if the payment failed. Calling
// it while a plugin is already current is invalid.
func (s *PaymentState) Process(now time.Time) (bool, error) {
	switch s.InternalState {
	case StateInitial:
		return s.advance(now)
	case StateInProgress:
		if s.CurrentPlugin != nil {
			return false, corerr.PluginInProgress(s.CurrentPlugin.Name)
		}
		return s.advance(now)
	default:
		return false, corerr.InvalidState(string(s.InternalState))
	}
}

func (s *PaymentState) advance(now time.Time) (bool, error) {
	if len(s.PendingPlugins) == 0 {
		s.InternalState = StateFailed
		return false, nil
	}
	name := s.PendingPlugins[0]
	s.PendingPlugins = s.PendingPlugins[1:]
	s.InternalState = StateInProgress
	s.CurrentPlugin = &PluginRun{Name: name, StartAt: now, State: RunSubmitted}
	return true, nil
}

// TryNext advances to the next pending plugin while IN_PROGRESS with
// no current plugin.
func (s *PaymentState) TryNext(now time.Time) (bool, error) {
	if s.InternalState != StateInProgress {
		return false, corerr.InvalidState(string(s.InternalState))
	}
	if s.CurrentPlugin != nil {
		return false, corerr.PluginInProgress(s.CurrentPlugin.Name)
	}
	return s.advance(now)
}

// FailCurrentPlugin moves the current plugin into triedPlugins as
// FAILED and clears currentPlugin.
func (s *PaymentState) FailCurrentPlugin(now time.Time) error {
	if s.InternalState != StateInProgress {
		return corerr.InvalidState(string(s.InternalState))
	}
	if s.CurrentPlugin == nil {
		return corerr.InvalidState(string(s.InternalState))
	}
	run := *s.CurrentPlugin
	run.State = RunFailed
	run.EndAt = &now
	s.TriedPlugins = append(s.TriedPlugins, run)
	s.CurrentPlugin = nil
	return nil
}

// Complete transitions IN_PROGRESS to COMPLETED, recording the current
// plugin as the one that completed it.
func (s *PaymentState) Complete(now time.Time) error {
	if s.InternalState != StateInProgress {
		return corerr.InvalidState(string(s.InternalState))
	}
	if s.CurrentPlugin == nil {
		return corerr.InvalidState(string(s.InternalState))
	}
	run := *s.CurrentPlugin
	run.State = RunSuccess
	run.EndAt = &now
	s.CompletedByPlugin = &run
	s.CurrentPlugin = nil
	s.InternalState = StateCompleted
	return nil
}

// Clone deep-copies the state, used before persisting a snapshot so
// later mutation of the live object never retroactively changes an
// already-saved record.
func (s *PaymentState) Clone() *PaymentState {
	clone := &PaymentState{
		InternalState:  s.InternalState,
		PendingPlugins: append([]string(nil), s.PendingPlugins...),
		TriedPlugins:   append([]PluginRun(nil), s.TriedPlugins...),
	}
	if s.CurrentPlugin != nil {
		cp := *s.CurrentPlugin
		clone.CurrentPlugin = &cp
	}
	if s.CompletedByPlugin != nil {
		cb := *s.CompletedByPlugin
		clone.CompletedByPlugin = &cb
	}
	return clone
}
