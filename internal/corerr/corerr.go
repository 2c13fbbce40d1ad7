// Package corerr defines the error taxonomy shared by every component
// of the payment engine. Errors are compared by Kind with errors.Is;
// a handful of kinds carry a Detail used for logging and for building
// the caller-facing message.
package corerr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// Validation
	KindNoOrderParams      Kind = "NO_ORDER_PARAMS"
	KindCounterpartyReq    Kind = "COUTNERPARTY_REQUIRED"
	KindInvalidFrequency   Kind = "INVALID_FREQUENCY"
	KindInvalidTimestamp   Kind = "INVALID_TIMESTAMP"
	KindPendingNotSlice    Kind = "PENDING_PLUGINS_NOT_ARRAY"

	// Lifecycle
	KindOrderCancelled     Kind = "ORDER_CANCELLED"
	KindOrderCompleted     Kind = "ORDER_COMPLETED"
	KindOutstandingPayment Kind = "OUTSTANDING_PAYMENTS"
	KindCanNotProcessOrder Kind = "CAN_NOT_PROCESS_ORDER"
	KindOrderNotFound      Kind = "ORDER_NOT_FOUND"
	KindInvalidState       Kind = "INVALID_STATE"
	KindPluginInProgress   Kind = "PLUGIN_IN_PROGRESS"

	// Plugin
	KindPluginInit         Kind = "PLUGIN.INIT"
	KindPluginGetManifest  Kind = "PLUGIN.GET_MANIFEST"
	KindPluginStop         Kind = "PLUGIN.STOP"
	KindPluginEventDispatch Kind = "PLUGIN.EVENT_DISPATCH"
	KindConflict           Kind = "CONFLICT"
	KindFailedToLoad       Kind = "FAILED_TO_LOAD"
	KindNoPluginsAvailable Kind = "NO_PLUGINS_AVAILABLE"

	// Send path
	KindPaymentTargetNotFound Kind = "PAYMENT_TARGET_NOT_FOUND"
	KindPluginNotActive       Kind = "PLUGIN_NOT_ACTIVE"

	// Receive path
	KindPaymentObjectNotFound       Kind = "PAYMENT_OBJECT_NOT_FOUND"
	KindPaymentCurrencyMismatch     Kind = "PAYMENT_CURRENCY_MISMATCH"
	KindPaymentDenominationMismatch Kind = "PAYMENT_DENOMINATION_MISMATCH"
	KindPayloadClientOrderIDMissing Kind = "PAYLOAD_CLIENT_ORDER_ID_IS_MISSING"

	// Store
	KindNotReady      Kind = "NOT_READY"
	KindNotFound      Kind = "NOT_FOUND"
	KindDuplicateID   Kind = "DUPLICATE_ID"
	KindInvalidPatch  Kind = "INVALID_PATCH"
)

// CoreError is the concrete error type every Kind above is wrapped in.
// Detail carries the offending name/id/state for parameterised kinds,
// e.g. INVALID_STATE(s) or FAILED_TO_LOAD(entryPoint).
type CoreError struct {
	Kind   Kind
	Detail string
}

func (e *CoreError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s(%s)", e.Kind, e.Detail)
}

// Is makes errors.Is(err, New(KindX, "")) match any CoreError of that
// Kind regardless of Detail, which is how callers are expected to test
// for a kind without caring about the parameter.
func (e *CoreError) Is(target error) bool {
	var other *CoreError
	if !errors.As(target, &other) {
		return false
	}
	if other.Detail == "" {
		return e.Kind == other.Kind
	}
	return e.Kind == other.Kind && e.Detail == other.Detail
}

func New(kind Kind, detail string) *CoreError {
	return &CoreError{Kind: kind, Detail: detail}
}

// Sentinel values for kinds that are always used bare (no Detail), so
// callers can write errors.Is(err, corerr.ErrOutstandingPayments).
var (
	ErrNoOrderParams        = New(KindNoOrderParams, "")
	ErrCounterpartyRequired = New(KindCounterpartyReq, "")
	ErrInvalidFrequency     = New(KindInvalidFrequency, "")
	ErrInvalidTimestamp     = New(KindInvalidTimestamp, "")
	ErrPendingNotSlice      = New(KindPendingNotSlice, "")

	ErrOrderCancelled       = New(KindOrderCancelled, "")
	ErrOrderCompleted       = New(KindOrderCompleted, "")
	ErrOutstandingPayments  = New(KindOutstandingPayment, "")
	ErrCanNotProcessOrder   = New(KindCanNotProcessOrder, "")

	ErrConflict             = New(KindConflict, "")
	ErrNoPluginsAvailable   = New(KindNoPluginsAvailable, "")

	ErrPaymentTargetNotFound = New(KindPaymentTargetNotFound, "")

	ErrPaymentObjectNotFound       = New(KindPaymentObjectNotFound, "")
	ErrPaymentCurrencyMismatch     = New(KindPaymentCurrencyMismatch, "")
	ErrPaymentDenominationMismatch = New(KindPaymentDenominationMismatch, "")
	ErrPayloadClientOrderIDMissing = New(KindPayloadClientOrderIDMissing, "")

	ErrNotReady     = New(KindNotReady, "")
	ErrNotFound     = New(KindNotFound, "")
	ErrDuplicateID  = New(KindDuplicateID, "")
	ErrInvalidPatch = New(KindInvalidPatch, "")
)

// InvalidState builds an INVALID_STATE(s) error for the given current state.
func InvalidState(state string) *CoreError { return New(KindInvalidState, state) }

// PluginInProgress builds a PLUGIN_IN_PROGRESS(name) error.
func PluginInProgress(name string) *CoreError { return New(KindPluginInProgress, name) }

// OrderNotFound builds an ORDER_NOT_FOUND(id) error.
func OrderNotFound(id string) *CoreError { return New(KindOrderNotFound, id) }

// FailedToLoad builds a FAILED_TO_LOAD(entryPoint) error.
func FailedToLoad(entryPoint string) *CoreError { return New(KindFailedToLoad, entryPoint) }

// PluginInit wraps a plugin's init() failure as PLUGIN.INIT(msg).
func PluginInit(msg string) *CoreError { return New(KindPluginInit, msg) }

// PluginGetManifest wraps a plugin's getmanifest() failure.
func PluginGetManifest(msg string) *CoreError { return New(KindPluginGetManifest, msg) }

// PluginStop wraps a plugin's stop() failure.
func PluginStop(msg string) *CoreError { return New(KindPluginStop, msg) }

// PluginNotActive reports that the registry entry for a plugin exists but is inactive.
func PluginNotActive(name string) *CoreError { return New(KindPluginNotActive, name) }
