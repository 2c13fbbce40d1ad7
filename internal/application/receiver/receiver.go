// Package receiver implements the PaymentReceiver: it publishes the
// engine's catalogue of receive endpoints into the transport,
// subscribes payment-type plugins to the receive-event, and
// reconciles the incoming plugin callbacks those subscriptions
// produce against an expected amount.
package receiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/paymentfabric/slashpay-engine/internal/application/pluginmanager"
	"github.com/paymentfabric/slashpay-engine/internal/corerr"
	"github.com/paymentfabric/slashpay-engine/internal/domain/amount"
	"github.com/paymentfabric/slashpay-engine/internal/domain/paymentobject"
	"github.com/paymentfabric/slashpay-engine/internal/domain/plugin"
	"github.com/paymentfabric/slashpay-engine/internal/domain/store"
	"github.com/paymentfabric/slashpay-engine/internal/domain/transport"
)

const publicCataloguePath = "/public/slashpay.json"

// PluginRegistry is the subset of pluginmanager.Manager Receiver needs.
type PluginRegistry interface {
	GetPlugins(isActive *bool) []pluginmanager.PluginEntry
	DispatchEvent(ctx context.Context, eventName string, data any)
}

// Notifier receives the incoming PaymentObject once reconciliation
// has run.
type Notifier interface {
	NotifyNewPayment(ctx context.Context, payment *paymentobject.Incoming) error
}

type Receiver struct {
	ctx       context.Context
	store     store.Store
	plugins   PluginRegistry
	transport transport.Connector
	notifier  Notifier
}

func New(ctx context.Context, st store.Store, plugins PluginRegistry, conn transport.Connector, notifier Notifier) *Receiver {
	return &Receiver{ctx: ctx, store: st, plugins: plugins, transport: conn, notifier: notifier}
}

type catalogue struct {
	PaymentEndpoints map[string]string `json:"paymentEndpoints"`
}

func activePaymentPlugins(plugins PluginRegistry) []pluginmanager.PluginEntry {
	active := true
	out := make([]pluginmanager.PluginEntry, 0)
	for _, e := range plugins.GetPlugins(&active) {
		if e.Manifest.Type == plugin.TypePayment {
			out = append(out, e)
		}
	}
	return out
}

// Init publishes the public catalogue and subscribes every active
// payment-type plugin to the receive-event.
func (r *Receiver) Init() (string, error) {
	entries := activePaymentPlugins(r.plugins)
	endpoints := make(map[string]string, len(entries))
	for _, e := range entries {
		path := fmt.Sprintf("/public/slashpay/%s/slashpay.json", e.Manifest.Name)
		url, err := r.transport.GetURL(r.ctx, path, transport.CreateOptions{})
		if err != nil {
			return "", err
		}
		endpoints[e.Manifest.Name] = url
	}

	body, err := json.Marshal(catalogue{PaymentEndpoints: endpoints})
	if err != nil {
		return "", err
	}

	url, err := r.transport.Create(r.ctx, publicCataloguePath, body, transport.CreateOptions{AwaitRelaySync: true})
	if err != nil {
		return "", err
	}

	r.plugins.DispatchEvent(r.ctx, plugin.EventReceivePayment, plugin.ReceivePayload{
		ID:                   uuid.NewString(),
		NotificationCallback: r.onPluginNotification(true),
	})

	return url, nil
}

// CreateInvoice publishes a per-invoice private catalogue, subscribes
// plugins with the expected amount attached, and records an initial
// incoming PaymentObject keyed by clientOrderId.
func (r *Receiver) CreateInvoice(clientOrderID string, expected amount.Amount) (string, error) {
	entries := activePaymentPlugins(r.plugins)
	endpoints := make(map[string]string, len(entries))
	for _, e := range entries {
		path := fmt.Sprintf("/slashpay/%s/%s/slashpay.json", clientOrderID, e.Manifest.Name)
		url, err := r.transport.GetURL(r.ctx, path, transport.CreateOptions{Encrypt: true})
		if err != nil {
			return "", err
		}
		endpoints[e.Manifest.Name] = url
	}

	body, err := json.Marshal(catalogue{PaymentEndpoints: endpoints})
	if err != nil {
		return "", err
	}

	indexPath := fmt.Sprintf("/slashpay/%s/slashpay.json", clientOrderID)
	url, err := r.transport.Create(r.ctx, indexPath, body, transport.CreateOptions{AwaitRelaySync: true, Encrypt: true})
	if err != nil {
		return "", err
	}

	// A record already exists when this call is the shortfall invoice
	// reconcilePersonal raises for a partial payment; only republish the
	// catalogue and re-dispatch in that case, the original Save stands.
	_, err = r.store.GetIncomingPayment(r.ctx, clientOrderID, store.GetOptions{})
	switch {
	case err == nil:
	case errors.Is(err, corerr.ErrNotFound):
		incoming := paymentobject.NewIncoming(paymentobject.IncomingParams{
			ID:             clientOrderID,
			ClientOrderID:  clientOrderID,
			ExpectedAmount: expected,
			CreatedAt:      time.Now(),
		}, r.store)
		if err := incoming.Save(r.ctx); err != nil {
			return "", err
		}
	default:
		return "", err
	}

	r.plugins.DispatchEvent(r.ctx, plugin.EventReceivePayment, plugin.ReceivePayload{
		ID:                   uuid.NewString(),
		ClientOrderID:        clientOrderID,
		ExpectedAmount:       expected.Amount(),
		ExpectedCurrency:     expected.Currency(),
		ExpectedDenomination: string(expected.Denomination()),
		NotificationCallback: r.onPluginNotification(true),
	})

	return url, nil
}

// onPluginNotification adapts a plugin's NewPaymentNotification into a
// call to HandleNewPayment.
func (r *Receiver) onPluginNotification(regenerate bool) func(plugin.NewPaymentNotification) {
	return func(n plugin.NewPaymentNotification) {
		_, _ = r.HandleNewPayment(n, regenerate)
	}
}

// HandleNewPayment reconciles an observed payment against its
// expectation (personal) or records a standalone receipt
// (non-personal).
func (r *Receiver) HandleNewPayment(n plugin.NewPaymentNotification, regenerate bool) (*paymentobject.Incoming, error) {
	received, err := amount.New(n.Amount, n.Currency, amount.Denomination(n.Denomination))
	if err != nil {
		return nil, err
	}

	var incoming *paymentobject.Incoming
	if n.IsPersonalPayment {
		incoming, err = r.reconcilePersonal(n, received)
	} else {
		incoming, err = r.recordNonPersonal(n, received)
	}
	if err != nil {
		return nil, err
	}

	if regenerate {
		if _, err := r.Init(); err != nil {
			return nil, err
		}
	}

	if err := r.notifier.NotifyNewPayment(r.ctx, incoming); err != nil {
		return nil, err
	}
	return incoming, nil
}

func (r *Receiver) reconcilePersonal(n plugin.NewPaymentNotification, received amount.Amount) (*paymentobject.Incoming, error) {
	if n.ClientOrderID == "" {
		return nil, corerr.ErrPayloadClientOrderIDMissing
	}

	rec, err := r.store.GetIncomingPayment(r.ctx, n.ClientOrderID, store.GetOptions{})
	if err != nil {
		if errors.Is(err, corerr.ErrNotFound) {
			return nil, corerr.ErrPaymentObjectNotFound
		}
		return nil, err
	}
	incoming := paymentobject.IncomingFromRecord(*rec, r.store)

	if incoming.ExpectedAmount.Currency() != received.Currency() {
		return nil, corerr.ErrPaymentCurrencyMismatch
	}
	if incoming.ExpectedAmount.Denomination() != received.Denomination() {
		return nil, corerr.ErrPaymentDenominationMismatch
	}

	missing, err := incoming.AppendReceipt(r.ctx, paymentobject.ReceivedByPlugin{
		Name:       n.PluginName,
		State:      "received",
		Amount:     received,
		RawData:    n.RawData,
		ReceivedAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}

	if missing != nil && !missing.IsZero() {
		if _, err := r.CreateInvoice(n.ClientOrderID, *missing); err != nil {
			return nil, err
		}
	}

	return incoming, nil
}

func (r *Receiver) recordNonPersonal(n plugin.NewPaymentNotification, received amount.Amount) (*paymentobject.Incoming, error) {
	id := n.ID
	if id == "" {
		id = uuid.NewString()
	}
	incoming := paymentobject.NewIncoming(paymentobject.IncomingParams{
		ID:             id,
		Memo:           n.Memo,
		ExpectedAmount: received,
		CreatedAt:      time.Now(),
	}, r.store)
	if err := incoming.Save(r.ctx); err != nil {
		return nil, err
	}
	if _, err := incoming.AppendReceipt(r.ctx, paymentobject.ReceivedByPlugin{
		Name:       n.PluginName,
		State:      "received",
		Amount:     received,
		RawData:    n.RawData,
		ReceivedAt: time.Now(),
	}); err != nil {
		return nil, err
	}
	return incoming, nil
}
