package pluginmanager_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paymentfabric/slashpay-engine/internal/application/pluginmanager"
	"github.com/paymentfabric/slashpay-engine/internal/corerr"
	"github.com/paymentfabric/slashpay-engine/internal/domain/plugin"
)

type fakePlugin struct {
	name          string
	events        []string
	handleCalls   atomic.Int64
	handleErr     error
	stopCalls     atomic.Int64
	stopErr       error
}

func (f *fakePlugin) GetManifest(ctx context.Context) (plugin.Manifest, error) {
	return plugin.Manifest{Name: f.name, Type: plugin.TypePayment, RPC: []string{"Pay"}, Events: f.events}, nil
}

func (f *fakePlugin) Pay(ctx context.Context, args plugin.PayArgs) error { return nil }

func (f *fakePlugin) Stop(ctx context.Context) error {
	f.stopCalls.Add(1)
	return f.stopErr
}

func (f *fakePlugin) HandleEvent(ctx context.Context, eventName string, data any) error {
	f.handleCalls.Add(1)
	return f.handleErr
}

func moduleFor(p *fakePlugin) plugin.Module {
	return plugin.ModuleFunc(func(ctx context.Context, storage any) (any, error) { return p, nil })
}

func TestInjectPlugin_DuplicateNameConflicts(t *testing.T) {
	m := pluginmanager.New(pluginmanager.Config{}, nil)

	a := &fakePlugin{name: "p2sh", events: []string{plugin.EventReceivePayment}}
	_, err := m.InjectPlugin(context.Background(), moduleFor(a), nil)
	require.NoError(t, err)

	b := &fakePlugin{name: "p2sh", events: []string{plugin.EventReceivePayment}}
	_, err = m.InjectPlugin(context.Background(), moduleFor(b), nil)
	require.ErrorIs(t, err, corerr.ErrConflict)
}

func TestInjectPlugin_PaymentTypeMustDeclarePayAndReceiveEvent(t *testing.T) {
	m := pluginmanager.New(pluginmanager.Config{}, nil)

	noEvent := &fakePlugin{name: "p2tr"}
	_, err := m.InjectPlugin(context.Background(), moduleFor(noEvent), nil)
	require.Error(t, err)
	var coreErr *corerr.CoreError
	require.ErrorAs(t, err, &coreErr)
	require.Equal(t, corerr.KindPluginGetManifest, coreErr.Kind)
}

func TestDispatchEvent_InvokesOnlyActiveSubscribedPlugins_AndToleratesErrors(t *testing.T) {
	m := pluginmanager.New(pluginmanager.Config{}, nil)

	// Payment-type manifests must always list the receive event, so the
	// subscription split is made on a second, custom event.
	const customEvent = "paymentSettled"
	subscribed := &fakePlugin{name: "p2sh", events: []string{plugin.EventReceivePayment, customEvent}, handleErr: errors.New("boom")}
	unsubscribed := &fakePlugin{name: "p2tr", events: []string{plugin.EventReceivePayment}}
	inactive := &fakePlugin{name: "ln", events: []string{plugin.EventReceivePayment, customEvent}}

	_, err := m.InjectPlugin(context.Background(), moduleFor(subscribed), nil)
	require.NoError(t, err)
	_, err = m.InjectPlugin(context.Background(), moduleFor(unsubscribed), nil)
	require.NoError(t, err)
	_, err = m.InjectPlugin(context.Background(), moduleFor(inactive), nil)
	require.NoError(t, err)
	require.NoError(t, m.StopPlugin(context.Background(), "ln"))

	m.DispatchEvent(context.Background(), customEvent, nil)

	require.Equal(t, int64(1), subscribed.handleCalls.Load())
	require.Equal(t, int64(0), unsubscribed.handleCalls.Load())
	require.Equal(t, int64(0), inactive.handleCalls.Load())
}

func TestGetRPCRegistry_ContainsEveryDeclaredMethod(t *testing.T) {
	m := pluginmanager.New(pluginmanager.Config{}, nil)
	p := &fakePlugin{name: "p2sh", events: []string{plugin.EventReceivePayment}}
	_, err := m.InjectPlugin(context.Background(), moduleFor(p), nil)
	require.NoError(t, err)

	reg := m.GetRPCRegistry()
	_, ok := reg["p2sh/Pay"]
	require.True(t, ok)
}

func TestRemovePlugin_RefusesWhileActive(t *testing.T) {
	m := pluginmanager.New(pluginmanager.Config{}, nil)
	p := &fakePlugin{name: "p2sh", events: []string{plugin.EventReceivePayment}}
	_, err := m.InjectPlugin(context.Background(), moduleFor(p), nil)
	require.NoError(t, err)

	removed, err := m.RemovePlugin("p2sh")
	require.NoError(t, err)
	require.False(t, removed)

	require.NoError(t, m.StopPlugin(context.Background(), "p2sh"))
	removed, err = m.RemovePlugin("p2sh")
	require.NoError(t, err)
	require.True(t, removed)
}

func TestLoadConfigured_LoadsEveryConfiguredNameOnce(t *testing.T) {
	a := &fakePlugin{name: "p2sh", events: []string{plugin.EventReceivePayment}}
	b := &fakePlugin{name: "ln", events: []string{plugin.EventReceivePayment}}
	m := pluginmanager.New(pluginmanager.Config{
		Plugins: map[string]plugin.Module{
			"p2sh": moduleFor(a),
			"ln":   moduleFor(b),
		},
	}, nil)

	require.NoError(t, m.LoadConfigured(context.Background(), nil))

	_, ok := m.Get("p2sh")
	require.True(t, ok)
	_, ok = m.Get("ln")
	require.True(t, ok)

	// Calling it again must not re-load an already-registered name.
	require.NoError(t, m.LoadConfigured(context.Background(), nil))
}

func TestGracefulThrow_StopsEveryPluginThenReraises(t *testing.T) {
	m := pluginmanager.New(pluginmanager.Config{}, nil)
	a := &fakePlugin{name: "p2sh", events: []string{plugin.EventReceivePayment}}
	b := &fakePlugin{name: "p2tr", events: []string{plugin.EventReceivePayment}}
	_, err := m.InjectPlugin(context.Background(), moduleFor(a), nil)
	require.NoError(t, err)
	_, err = m.InjectPlugin(context.Background(), moduleFor(b), nil)
	require.NoError(t, err)

	sentinel := errors.New("boom")
	got := m.GracefulThrow(context.Background(), sentinel)
	require.ErrorIs(t, got, sentinel)
	require.Equal(t, int64(1), a.stopCalls.Load())
	require.Equal(t, int64(1), b.stopCalls.Load())
}
