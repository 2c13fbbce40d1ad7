// Package manager implements the PaymentManager facade: the thin
// orchestration surface a caller drives (create/send orders, create
// invoices, receive payments) plus the two routers
// (entryPointForPlugin, entryPointForUser) every other component
// reports through.
package manager

import (
	"context"
	"fmt"
	"sync"

	"github.com/paymentfabric/slashpay-engine/internal/application/pluginmanager"
	"github.com/paymentfabric/slashpay-engine/internal/application/receiver"
	"github.com/paymentfabric/slashpay-engine/internal/application/sender"
	"github.com/paymentfabric/slashpay-engine/internal/corerr"
	"github.com/paymentfabric/slashpay-engine/internal/domain/amount"
	"github.com/paymentfabric/slashpay-engine/internal/domain/event"
	"github.com/paymentfabric/slashpay-engine/internal/domain/order"
	"github.com/paymentfabric/slashpay-engine/internal/domain/paymentobject"
	"github.com/paymentfabric/slashpay-engine/internal/domain/plugin"
	"github.com/paymentfabric/slashpay-engine/internal/domain/store"
	"github.com/paymentfabric/slashpay-engine/internal/domain/transport"
	"github.com/paymentfabric/slashpay-engine/internal/infra/logging"
	"github.com/paymentfabric/slashpay-engine/internal/infra/metrics"
)

const (
	publicPluginFilePath  = "/public/slashpay/%s/slashpay.json"
	privatePluginFilePath = "/slashpay/%s/%s/slashpay.json"
)

// EventPublisher is the narrow dependency Manager needs to fan
// notifications out through the outbox.
type EventPublisher interface {
	Notify(ctx context.Context, evt event.Event) error
}

type Manager struct {
	store     store.Store
	plugins   *pluginmanager.Manager
	transport transport.Connector
	publisher EventPublisher
	logger    logging.Logger
	metrics   *metrics.Counters

	ready bool

	mu      sync.RWMutex
	senders map[string]*sender.Sender
}

func New(st store.Store, plugins *pluginmanager.Manager, conn transport.Connector, publisher EventPublisher, logger logging.Logger, counters *metrics.Counters) *Manager {
	if logger == nil {
		logger = &logging.StdoutLogger{}
	}
	return &Manager{
		store:     st,
		plugins:   plugins,
		transport: conn,
		publisher: publisher,
		logger:    logger,
		metrics:   counters,
		senders:   make(map[string]*sender.Sender),
	}
}

// Init readies the store and transport.
func (m *Manager) Init(ctx context.Context) error {
	if err := m.store.Init(ctx); err != nil {
		return err
	}
	if err := m.transport.Init(ctx); err != nil {
		return err
	}
	m.ready = true
	return nil
}

func (m *Manager) checkReady() error {
	if !m.ready {
		return corerr.ErrNotReady
	}
	return nil
}

// CreatePaymentOrder constructs, initialises, and persists a new
// PaymentOrder.
func (m *Manager) CreatePaymentOrder(ctx context.Context, params order.Params) (store.OrderRecord, error) {
	if err := m.checkReady(); err != nil {
		return store.OrderRecord{}, err
	}
	o, err := order.New(params, m.store)
	if err != nil {
		return store.OrderRecord{}, err
	}
	if err := o.Init(ctx); err != nil {
		return store.OrderRecord{}, err
	}
	return o.Record(), nil
}

// SendPayment loads the order and drives one submission step through
// a fresh Sender.
func (m *Manager) SendPayment(ctx context.Context, orderID string) error {
	if err := m.checkReady(); err != nil {
		return err
	}
	o, err := order.Find(ctx, orderID, m.store)
	if err != nil {
		return err
	}

	s := sender.New(ctx, o, m.plugins, m.transport, notifierFunc(m.notifyPluginEntryPoint), nil).WithMetrics(m.metrics)
	m.mu.Lock()
	m.senders[orderID] = s
	m.mu.Unlock()

	if err := s.Submit(); err != nil {
		m.logger.Error("send payment failed", map[string]any{"orderId": orderID, "error": err.Error()})
		return err
	}
	return nil
}

// ReceivePayments loads every configured plugin and publishes the
// public receive catalogue.
func (m *Manager) ReceivePayments(ctx context.Context) (string, error) {
	if err := m.checkReady(); err != nil {
		return "", err
	}
	if err := m.plugins.LoadConfigured(ctx, m.store); err != nil {
		return "", err
	}
	r := receiver.New(ctx, m.store, m.plugins, m.transport, notifierAdapter(m.notifyPluginEntryPointNewPayment))
	return r.Init()
}

// CreateInvoice publishes a per-invoice receive catalogue for amount.
func (m *Manager) CreateInvoice(ctx context.Context, clientOrderID string, amt amount.Amount) (string, error) {
	if err := m.checkReady(); err != nil {
		return "", err
	}
	r := receiver.New(ctx, m.store, m.plugins, m.transport, notifierAdapter(m.notifyPluginEntryPointNewPayment))
	return r.CreateInvoice(clientOrderID, amt)
}

// EntryPointForPlugin dispatches plugin-originated callbacks by type.
func (m *Manager) EntryPointForPlugin(ctx context.Context, payloadType string, orderID string, update plugin.Update) error {
	switch event.Type(payloadType) {
	case event.PaymentNew:
		// Already routed directly from the receive-event's
		// NotificationCallback into receiver.HandleNewPayment; nothing
		// left for the generic router to do with it here.
		return nil
	case event.PaymentUpdate:
		return m.handlePaymentUpdate(ctx, orderID, update)
	case event.PaymentOrderCompleted:
		return m.publisher.Notify(ctx, event.Event{
			Type:    event.PaymentOrderCompleted,
			Payload: event.PaymentOrderCompletedPayload{OrderID: orderID},
		})
	default:
		return m.publisher.Notify(ctx, event.Event{
			Type:    event.UserNotification,
			Payload: event.UserNotificationPayload{Reason: payloadType},
		})
	}
}

// handlePaymentUpdate forwards to the order's active Sender if one is
// tracked, otherwise surfaces the update as a user notification.
func (m *Manager) handlePaymentUpdate(ctx context.Context, orderID string, update plugin.Update) error {
	m.mu.RLock()
	s, ok := m.senders[orderID]
	m.mu.RUnlock()
	if ok {
		return s.StateUpdateCallback(update)
	}
	return m.publisher.Notify(ctx, event.Event{
		Type: event.UserNotification,
		Payload: event.UserNotificationPayload{
			Reason:  "no active sender for order",
			Payment: update,
		},
	})
}

// EntryPointForUser routes an out-of-band user update to the order's
// active sender, or loads the plugin directly and calls its
// UpdatePayment.
func (m *Manager) EntryPointForUser(ctx context.Context, pluginName string, orderID string, data any) error {
	if pluginName == "" {
		return fmt.Errorf("manager: entryPointForUser requires pluginName")
	}

	if orderID != "" {
		m.mu.RLock()
		s, ok := m.senders[orderID]
		m.mu.RUnlock()
		if ok {
			return s.UpdatePayment(data)
		}
	}

	entry, ok := m.plugins.Get(pluginName)
	if !ok {
		instance, err := m.plugins.LoadPlugin(ctx, pluginName, nil)
		if err != nil {
			return err
		}
		entry = pluginmanager.PluginEntry{Active: true, Instance: instance}
	}
	if !entry.Active {
		return corerr.PluginNotActive(pluginName)
	}
	updater, ok := entry.Instance.(plugin.Updater)
	if !ok {
		return corerr.FailedToLoad(pluginName)
	}
	return updater.UpdatePayment(ctx, data)
}

// CreatePaymentFile writes a plugin-produced file into the transport,
// at the public or private (encrypted, client-scoped) path.
func (m *Manager) CreatePaymentFile(ctx context.Context, pluginName string, clientOrderID string, isPublic bool, data []byte) (string, error) {
	if isPublic {
		path := fmt.Sprintf(publicPluginFilePath, pluginName)
		return m.transport.Create(ctx, path, data, transport.CreateOptions{AwaitRelaySync: true})
	}
	if clientOrderID == "" {
		return "", corerr.ErrPayloadClientOrderIDMissing
	}
	path := fmt.Sprintf(privatePluginFilePath, clientOrderID, pluginName)
	return m.transport.Create(ctx, path, data, transport.CreateOptions{AwaitRelaySync: true, Encrypt: true})
}

func (m *Manager) notifyPluginEntryPoint(ctx context.Context, evt event.Event) error {
	return m.publisher.Notify(ctx, evt)
}

func (m *Manager) notifyPluginEntryPointNewPayment(ctx context.Context, p *paymentobject.Incoming) error {
	return m.publisher.Notify(ctx, event.Event{
		Type: event.PaymentNew,
		Payload: event.PaymentNewPayload{
			ID:            p.ID,
			ClientOrderID: p.ClientOrderID,
		},
	})
}

type notifierFunc func(ctx context.Context, evt event.Event) error

func (f notifierFunc) Notify(ctx context.Context, evt event.Event) error { return f(ctx, evt) }

type notifierAdapterFunc func(ctx context.Context, p *paymentobject.Incoming) error

func (f notifierAdapterFunc) NotifyNewPayment(ctx context.Context, p *paymentobject.Incoming) error {
	return f(ctx, p)
}

func notifierAdapter(f func(ctx context.Context, p *paymentobject.Incoming) error) receiver.Notifier {
	return notifierAdapterFunc(f)
}
