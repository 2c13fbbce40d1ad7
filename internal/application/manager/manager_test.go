package manager_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paymentfabric/slashpay-engine/internal/application/manager"
	"github.com/paymentfabric/slashpay-engine/internal/application/pluginmanager"
	"github.com/paymentfabric/slashpay-engine/internal/corerr"
	"github.com/paymentfabric/slashpay-engine/internal/domain/amount"
	"github.com/paymentfabric/slashpay-engine/internal/domain/event"
	"github.com/paymentfabric/slashpay-engine/internal/domain/order"
	"github.com/paymentfabric/slashpay-engine/internal/domain/plugin"
	"github.com/paymentfabric/slashpay-engine/internal/domain/transport"
	"github.com/paymentfabric/slashpay-engine/internal/infra/metrics"
	"github.com/paymentfabric/slashpay-engine/internal/infrastructure/persistence/inmemory"
	"github.com/paymentfabric/slashpay-engine/internal/infrastructure/transport/memconnector"
)

type recordingPublisher struct {
	events []event.Event
}

func (p *recordingPublisher) Notify(ctx context.Context, evt event.Event) error {
	p.events = append(p.events, evt)
	return nil
}

type fakePaymentPlugin struct {
	name    string
	outcome plugin.Update
}

func (p *fakePaymentPlugin) GetManifest(ctx context.Context) (plugin.Manifest, error) {
	return plugin.Manifest{
		Name:   p.name,
		Type:   plugin.TypePayment,
		RPC:    []string{"Pay"},
		Events: []string{plugin.EventReceivePayment},
	}, nil
}

func (p *fakePaymentPlugin) Pay(ctx context.Context, args plugin.PayArgs) error {
	if p.outcome.PluginState != "" {
		args.NotificationCallback(p.outcome)
	}
	return nil
}

func (p *fakePaymentPlugin) HandleEvent(ctx context.Context, eventName string, data any) error {
	return nil
}

func moduleFor(p *fakePaymentPlugin) plugin.Module {
	return plugin.ModuleFunc(func(ctx context.Context, storage any) (any, error) { return p, nil })
}

type testHarness struct {
	manager   *manager.Manager
	plugins   *pluginmanager.Manager
	conn      *memconnector.Connector
	publisher *recordingPublisher
}

func newTestManager(t *testing.T) *testHarness {
	st := inmemory.New()
	plugins := pluginmanager.New(pluginmanager.Config{}, nil)
	conn := memconnector.New()
	publisher := &recordingPublisher{}

	m := manager.New(st, plugins, conn, publisher, nil, metrics.NewCounters())
	require.NoError(t, m.Init(context.Background()))
	return &testHarness{manager: m, plugins: plugins, conn: conn, publisher: publisher}
}

// publishCatalogue writes a counterparty catalogue into the harness's
// connector routing pluginName's endpoint to a dummy target payload,
// so Sender.resolveTarget succeeds.
func (h *testHarness) publishCatalogue(t *testing.T, pluginName string) string {
	targetBytes, err := json.Marshal(map[string]string{"address": "bc1qtest"})
	require.NoError(t, err)
	targetURL, err := h.conn.Create(context.Background(), "/targets/"+pluginName, targetBytes, transport.CreateOptions{})
	require.NoError(t, err)

	catalogue, err := json.Marshal(map[string]map[string]string{
		"paymentEndpoints": {pluginName: targetURL},
	})
	require.NoError(t, err)
	counterpartyURL, err := h.conn.Create(context.Background(), "/catalogue", catalogue, transport.CreateOptions{})
	require.NoError(t, err)
	return counterpartyURL
}

func TestCreatePaymentOrder_PersistsAndReturnsRecord(t *testing.T) {
	h := newTestManager(t)

	amt, err := amount.New("100", "BTC", amount.DenominationBase)
	require.NoError(t, err)
	now := time.Now()

	rec, err := h.manager.CreatePaymentOrder(context.Background(), order.Params{
		Amount:          amt,
		CounterpartyURL: "https://counterparty.example",
		CreatedAt:       now,
		FirstPaymentAt:  now,
	})
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	require.Equal(t, string(order.StateInitialized), rec.State)
}

func TestCreatePaymentOrder_NotReadyBeforeInit(t *testing.T) {
	st := inmemory.New()
	plugins := pluginmanager.New(pluginmanager.Config{}, nil)
	conn := memconnector.New()
	m := manager.New(st, plugins, conn, &recordingPublisher{}, nil, nil)

	_, err := m.CreatePaymentOrder(context.Background(), order.Params{})
	require.ErrorIs(t, err, corerr.ErrNotReady)
}

func TestSendPayment_DrivesSenderAndTracksItForCallbacks(t *testing.T) {
	h := newTestManager(t)

	_, err := h.plugins.InjectPlugin(context.Background(), moduleFor(&fakePaymentPlugin{name: "p2wpkh"}), nil)
	require.NoError(t, err)

	counterpartyURL := h.publishCatalogue(t, "p2wpkh")

	amt, err := amount.New("100", "BTC", amount.DenominationBase)
	require.NoError(t, err)
	now := time.Now()
	rec, err := h.manager.CreatePaymentOrder(context.Background(), order.Params{
		SendingPriority: []string{"p2wpkh"},
		Amount:          amt,
		CounterpartyURL: counterpartyURL,
		CreatedAt:       now,
		FirstPaymentAt:  now,
	})
	require.NoError(t, err)

	require.NoError(t, h.manager.SendPayment(context.Background(), rec.ID))

	require.NoError(t, h.manager.EntryPointForPlugin(context.Background(), string(event.PaymentUpdate), rec.ID, plugin.Update{PluginState: "success"}))

	var sawCompleted bool
	for _, evt := range h.publisher.events {
		if evt.Type == event.PaymentOrderCompleted {
			sawCompleted = true
		}
	}
	require.True(t, sawCompleted)
}

func TestReceivePayments_LoadsConfiguredPluginsBeforeInit(t *testing.T) {
	st := inmemory.New()
	receivePlugin := &fakePaymentPlugin{name: "p2wpkh"}
	plugins := pluginmanager.New(pluginmanager.Config{
		Plugins: map[string]plugin.Module{"p2wpkh": moduleFor(receivePlugin)},
	}, nil)
	conn := memconnector.New()
	m := manager.New(st, plugins, conn, &recordingPublisher{}, nil, metrics.NewCounters())
	require.NoError(t, m.Init(context.Background()))

	_, ok := plugins.Get("p2wpkh")
	require.False(t, ok, "plugin must not be loaded yet")

	url, err := m.ReceivePayments(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, url)

	_, ok = plugins.Get("p2wpkh")
	require.True(t, ok, "ReceivePayments must load every configured plugin first")
}

func TestEntryPointForPlugin_NoActiveSenderSurfacesUserNotification(t *testing.T) {
	h := newTestManager(t)

	err := h.manager.EntryPointForPlugin(context.Background(), string(event.PaymentUpdate), "unknown-order", plugin.Update{PluginState: "failed"})
	require.NoError(t, err)
	require.Len(t, h.publisher.events, 1)
	require.Equal(t, event.UserNotification, h.publisher.events[0].Type)
}

func TestEntryPointForPlugin_OrderCompletedForwardsToPublisher(t *testing.T) {
	h := newTestManager(t)

	err := h.manager.EntryPointForPlugin(context.Background(), string(event.PaymentOrderCompleted), "order-5", plugin.Update{})
	require.NoError(t, err)
	require.Len(t, h.publisher.events, 1)
	require.Equal(t, event.PaymentOrderCompleted, h.publisher.events[0].Type)
}

func TestEntryPointForUser_RequiresPluginName(t *testing.T) {
	h := newTestManager(t)

	err := h.manager.EntryPointForUser(context.Background(), "", "order-1", map[string]string{"memo": "x"})
	require.Error(t, err)
}

func TestEntryPointForUser_LoadsPluginDirectlyWhenNoActiveSender(t *testing.T) {
	h := newTestManager(t)

	updater := &updatingPlugin{name: "lightning"}
	_, err := h.plugins.InjectPlugin(context.Background(), moduleFor2(updater), nil)
	require.NoError(t, err)

	require.NoError(t, h.manager.EntryPointForUser(context.Background(), "lightning", "", map[string]string{"memo": "y"}))
	require.Equal(t, 1, updater.calls)
}

func TestCreatePaymentFile_PublicVsPrivatePaths(t *testing.T) {
	h := newTestManager(t)

	publicURL, err := h.manager.CreatePaymentFile(context.Background(), "lightning", "", true, []byte("{}"))
	require.NoError(t, err)
	require.NotEmpty(t, publicURL)

	_, err = h.manager.CreatePaymentFile(context.Background(), "lightning", "", false, []byte("{}"))
	require.ErrorIs(t, err, corerr.ErrPayloadClientOrderIDMissing)

	privateURL, err := h.manager.CreatePaymentFile(context.Background(), "lightning", "client-order-9", false, []byte("{}"))
	require.NoError(t, err)
	require.NotEmpty(t, privateURL)
}

type updatingPlugin struct {
	name  string
	calls int
}

func (p *updatingPlugin) GetManifest(ctx context.Context) (plugin.Manifest, error) {
	return plugin.Manifest{
		Name:   p.name,
		Type:   plugin.TypePayment,
		RPC:    []string{"Pay"},
		Events: []string{plugin.EventReceivePayment},
	}, nil
}

func (p *updatingPlugin) Pay(ctx context.Context, args plugin.PayArgs) error { return nil }

func (p *updatingPlugin) HandleEvent(ctx context.Context, eventName string, data any) error {
	return nil
}

func (p *updatingPlugin) UpdatePayment(ctx context.Context, data any) error {
	p.calls++
	return nil
}

func moduleFor2(p *updatingPlugin) plugin.Module {
	return plugin.ModuleFunc(func(ctx context.Context, storage any) (any, error) { return p, nil })
}
