// Package sender implements the PaymentSender: for a given order,
// resolves the counterparty's endpoint for the current plugin, invokes
// the plugin's pay operation, and processes the asynchronous plugin
// callback to advance or retry. It is short-lived and holds borrowed
// references to the order, plugin manager, and transport; only the
// payment's own persisted state survives past Submit.
package sender

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/paymentfabric/slashpay-engine/internal/application/pluginmanager"
	"github.com/paymentfabric/slashpay-engine/internal/corerr"
	"github.com/paymentfabric/slashpay-engine/internal/domain/event"
	"github.com/paymentfabric/slashpay-engine/internal/domain/order"
	"github.com/paymentfabric/slashpay-engine/internal/domain/paymentobject"
	"github.com/paymentfabric/slashpay-engine/internal/domain/plugin"
	"github.com/paymentfabric/slashpay-engine/internal/domain/transport"
	"github.com/paymentfabric/slashpay-engine/internal/infra/metrics"
)

// PluginLoader is the subset of pluginmanager.Manager Sender needs.
type PluginLoader interface {
	Get(name string) (pluginmanager.PluginEntry, bool)
	LoadPlugin(ctx context.Context, entryPoint string, storage any) (any, error)
}

// Notifier is how Sender reports to the facade's entryPointForPlugin.
type Notifier interface {
	Notify(ctx context.Context, evt event.Event) error
}

type Sender struct {
	ctx       context.Context
	order     *order.Order
	plugins   PluginLoader
	transport transport.Connector
	notifier  Notifier
	storage   any
	metrics   *metrics.Counters
}

// New constructs a Sender bound to order, holding ctx for use inside
// asynchronous plugin callbacks delivered after Submit returns.
func New(ctx context.Context, o *order.Order, plugins PluginLoader, conn transport.Connector, notifier Notifier, storage any) *Sender {
	return &Sender{ctx: ctx, order: o, plugins: plugins, transport: conn, notifier: notifier, storage: storage}
}

// WithMetrics attaches a counters sink; Submit/handleFailure/handleSuccess
// record into it when set.
func (s *Sender) WithMetrics(m *metrics.Counters) *Sender {
	s.metrics = m
	return s
}

// Submit advances the order, resolves the current plugin and its
// endpoint, and invokes Pay. Pay returns immediately; progress arrives
// via StateUpdateCallback.
func (s *Sender) Submit() error {
	now := time.Now()
	payment, err := s.order.Process(s.ctx, now)
	if err != nil {
		return err
	}
	if payment == nil || !payment.IsDue(now) {
		return nil
	}
	run := payment.GetCurrentPlugin()
	if run == nil {
		return corerr.ErrNoPluginsAvailable
	}

	entry, ok := s.plugins.Get(run.Name)
	if !ok {
		instance, err := s.plugins.LoadPlugin(s.ctx, run.Name, s.storage)
		if err != nil {
			return err
		}
		entry = pluginmanager.PluginEntry{Active: true, Instance: instance}
	} else if !entry.Active {
		return errors.New("plugin is not active")
	}

	payer, ok := entry.Instance.(plugin.Plugin)
	if !ok {
		return corerr.FailedToLoad(run.Name)
	}

	target, err := s.resolveTarget(payment.CounterpartyURL, run.Name)
	if err != nil || target == nil {
		return s.handleFailure(payment, run.Name, corerr.ErrPaymentTargetNotFound.Error())
	}

	if s.metrics != nil {
		s.metrics.IncProcessed(run.Name)
	}

	payload := payment.SerializeForPlugin()
	return payer.Pay(s.ctx, plugin.PayArgs{
		Target: target,
		Payload: plugin.PayPayload{
			ID:           payload.ID,
			OrderID:      payload.OrderID,
			Memo:         payload.Memo,
			Amount:       payload.Amount,
			Currency:     payload.Currency,
			Denomination: payload.Denomination,
		},
		NotificationCallback: func(u plugin.Update) {
			_ = s.StateUpdateCallback(u)
		},
	})
}

// resolveTarget reads the counterparty's catalogue, looks up the
// current plugin's published endpoint, and reads the payload stored
// there.
func (s *Sender) resolveTarget(counterpartyURL, pluginName string) (any, error) {
	catalogueBytes, err := s.transport.ReadRemote(s.ctx, counterpartyURL)
	if err != nil || catalogueBytes == nil {
		return nil, err
	}

	var catalogue struct {
		PaymentEndpoints map[string]string `json:"paymentEndpoints"`
	}
	if err := json.Unmarshal(catalogueBytes, &catalogue); err != nil {
		return nil, err
	}

	url, ok := catalogue.PaymentEndpoints[pluginName]
	if !ok || url == "" {
		return nil, nil
	}

	targetBytes, err := s.transport.ReadRemote(s.ctx, url)
	if err != nil || targetBytes == nil {
		return nil, err
	}

	var target any
	if err := json.Unmarshal(targetBytes, &target); err != nil {
		return nil, err
	}
	return target, nil
}

// currentPayment locates the order's in-progress payment. At most one
// payment is in progress per order.
func (s *Sender) currentPayment() *paymentobject.Outgoing {
	for _, p := range s.order.Payments {
		if p.IsInProgress() {
			return p
		}
	}
	return nil
}

// StateUpdateCallback processes an asynchronous plugin notification.
// Callbacks arriving after the payment reached a terminal state are
// dropped.
func (s *Sender) StateUpdateCallback(update plugin.Update) error {
	payment := s.currentPayment()
	if payment == nil {
		return nil
	}

	switch update.PluginState {
	case "failed":
		return s.handleFailure(payment, payment.GetCurrentPlugin().Name, update.Data)
	case "success":
		return s.handleSuccess(payment)
	default:
		return s.notifier.Notify(s.ctx, event.Event{
			Type: event.PaymentUpdate,
			Payload: event.PaymentUpdatePayload{
				PluginName:  currentPluginName(payment),
				OrderID:     s.order.ID,
				PaymentID:   payment.ID,
				PluginState: update.PluginState,
				Data:        update.Data,
			},
		})
	}
}

func currentPluginName(p *paymentobject.Outgoing) string {
	if run := p.GetCurrentPlugin(); run != nil {
		return run.Name
	}
	return ""
}

// handleFailure fails the current plugin, reports it, and retries
// with the next plugin in sendingPriority. A target-not-found is
// recovered the same way as a plugin failure.
func (s *Sender) handleFailure(payment *paymentobject.Outgoing, pluginName string, data any) error {
	now := time.Now()
	if err := payment.FailCurrentPlugin(s.ctx, now); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncFailed(pluginName)
	}

	if err := s.notifier.Notify(s.ctx, event.Event{
		Type: event.PaymentUpdate,
		Payload: event.PaymentUpdatePayload{
			PluginName:  pluginName,
			OrderID:     s.order.ID,
			PaymentID:   payment.ID,
			PluginState: "failed",
			Data:        data,
		},
	}); err != nil {
		return err
	}

	if err := s.Submit(); err != nil {
		if errors.Is(err, corerr.ErrNoPluginsAvailable) {
			return s.notifier.Notify(s.ctx, event.Event{
				Type: event.PaymentUpdate,
				Payload: event.PaymentUpdatePayload{
					OrderID:     s.order.ID,
					PaymentID:   payment.ID,
					PluginState: "failed",
					Data:        corerr.ErrNoPluginsAvailable.Error(),
				},
			})
		}
		return err
	}
	return nil
}

// handleSuccess completes the payment, reports it, and attempts to
// complete the order. A recurring order with outstanding payments is
// not an error; the next payment is submitted instead.
func (s *Sender) handleSuccess(payment *paymentobject.Outgoing) error {
	now := time.Now()
	name := currentPluginName(payment)
	if err := payment.Complete(s.ctx, now); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncSucceeded(name)
	}

	if err := s.notifier.Notify(s.ctx, event.Event{
		Type: event.PaymentUpdate,
		Payload: event.PaymentUpdatePayload{
			PluginName:  name,
			OrderID:     s.order.ID,
			PaymentID:   payment.ID,
			PluginState: "success",
		},
	}); err != nil {
		return err
	}

	err := s.order.Complete(s.ctx, now)
	if err == nil {
		return s.notifier.Notify(s.ctx, event.Event{
			Type:    event.PaymentOrderCompleted,
			Payload: event.PaymentOrderCompletedPayload{OrderID: s.order.ID},
		})
	}
	if errors.Is(err, corerr.ErrOutstandingPayments) {
		if submitErr := s.Submit(); submitErr != nil {
			return submitErr
		}
		return s.notifier.Notify(s.ctx, event.Event{
			Type: event.PaymentUpdate,
			Payload: event.PaymentUpdatePayload{
				OrderID:     s.order.ID,
				PaymentID:   payment.ID,
				PluginState: "partially complete",
			},
		})
	}
	return err
}

// UpdatePayment forwards an out-of-band user-originated update to the
// current in-progress payment's plugin.
func (s *Sender) UpdatePayment(data any) error {
	payment := s.currentPayment()
	if payment == nil {
		return corerr.ErrPaymentObjectNotFound
	}
	run := payment.GetCurrentPlugin()
	if run == nil {
		return corerr.ErrNoPluginsAvailable
	}
	entry, ok := s.plugins.Get(run.Name)
	if !ok || !entry.Active {
		return corerr.PluginNotActive(run.Name)
	}
	updater, ok := entry.Instance.(plugin.Updater)
	if !ok {
		return corerr.FailedToLoad(run.Name)
	}
	return updater.UpdatePayment(s.ctx, data)
}
