// Package pluginmanager implements the registry of loaded
// payment-method plugins plus the event dispatcher and RPC namespace
// built over them: a narrow mandatory interface plus optional
// capabilities probed by type assertion, kept in an in-memory map
// guarded by a mutex.
package pluginmanager

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/paymentfabric/slashpay-engine/internal/corerr"
	"github.com/paymentfabric/slashpay-engine/internal/domain/plugin"
	"github.com/paymentfabric/slashpay-engine/internal/infra/logging"
)

type entry struct {
	manifest plugin.Manifest
	instance any
	active   bool
}

// Config resolves an entryPoint name to a loadable Module.
type Config struct {
	// Plugins holds pre-resolved modules keyed by entryPoint name.
	Plugins map[string]plugin.Module
	// Paths maps an entryPoint name to a Go plugin (.so) path used as
	// a fallback when Loader can't resolve the name directly.
	Paths map[string]string
	// Loader resolves a filesystem path to a Module. Defaults to
	// loadGoPlugin.
	Loader func(path string) (plugin.Module, error)
}

type Manager struct {
	mu     sync.RWMutex
	config Config
	logger logging.Logger

	entries map[string]*entry
}

func New(cfg Config, logger logging.Logger) *Manager {
	if cfg.Loader == nil {
		cfg.Loader = loadGoPlugin
	}
	if logger == nil {
		logger = &logging.StdoutLogger{}
	}
	return &Manager{
		config:  cfg,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// LoadPlugin resolves entryPoint to a Module and injects it.
func (m *Manager) LoadPlugin(ctx context.Context, entryPoint string, storage any) (any, error) {
	if mod, ok := m.config.Plugins[entryPoint]; ok {
		return m.InjectPlugin(ctx, mod, storage)
	}

	if mod, err := m.config.Loader(entryPoint); err == nil {
		return m.InjectPlugin(ctx, mod, storage)
	}

	if path, ok := m.config.Paths[entryPoint]; ok {
		mod, err := m.config.Loader(path)
		if err != nil {
			return nil, corerr.FailedToLoad(entryPoint)
		}
		return m.InjectPlugin(ctx, mod, storage)
	}

	return nil, corerr.FailedToLoad(entryPoint)
}

// LoadConfigured loads every entryPoint named in the configured plugin
// table, skipping names already registered. A conflict on load is not
// an error here; it means a previous call already did the work.
func (m *Manager) LoadConfigured(ctx context.Context, storage any) error {
	names := make(map[string]struct{}, len(m.config.Plugins)+len(m.config.Paths))
	for name := range m.config.Plugins {
		names[name] = struct{}{}
	}
	for name := range m.config.Paths {
		names[name] = struct{}{}
	}

	for name := range names {
		if _, ok := m.Get(name); ok {
			continue
		}
		if _, err := m.LoadPlugin(ctx, name, storage); err != nil {
			if errors.Is(err, corerr.ErrConflict) {
				continue
			}
			return err
		}
	}
	return nil
}

// InjectPlugin calls module.Init(storage), validates the returned
// instance's manifest, and registers it.
func (m *Manager) InjectPlugin(ctx context.Context, module plugin.Module, storage any) (any, error) {
	instance, err := module.Init(ctx, storage)
	if err != nil {
		return nil, corerr.PluginInit(err.Error())
	}

	provider, ok := instance.(plugin.ManifestProvider)
	if !ok {
		return nil, corerr.PluginGetManifest("instance does not implement GetManifest")
	}
	manifest, err := provider.GetManifest(ctx)
	if err != nil {
		return nil, corerr.PluginGetManifest(err.Error())
	}

	if err := m.validateManifest(manifest, instance); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[manifest.Name]; exists {
		return nil, corerr.ErrConflict
	}
	m.entries[manifest.Name] = &entry{manifest: manifest, instance: instance, active: true}
	return instance, nil
}

// validateManifest enforces manifest rules: non-empty unique name, RPC
// methods that exist on instance, payment-type plugins declaring
// "pay" and the receive event.
func (m *Manager) validateManifest(manifest plugin.Manifest, instance any) error {
	if manifest.Name == "" {
		return corerr.PluginGetManifest("manifest name must not be empty")
	}

	seenRPC := make(map[string]struct{}, len(manifest.RPC))
	v := reflect.ValueOf(instance)
	for _, method := range manifest.RPC {
		if method == "" {
			return corerr.PluginGetManifest("rpc method name must not be empty")
		}
		if _, dup := seenRPC[method]; dup {
			return corerr.PluginGetManifest(fmt.Sprintf("duplicate rpc method %q", method))
		}
		seenRPC[method] = struct{}{}
		if !v.MethodByName(method).IsValid() {
			return corerr.PluginGetManifest(fmt.Sprintf("rpc method %q not found on plugin", method))
		}
	}

	seenEvents := make(map[string]struct{}, len(manifest.Events))
	for _, ev := range manifest.Events {
		if ev == "" {
			return corerr.PluginGetManifest("event name must not be empty")
		}
		if _, dup := seenEvents[ev]; dup {
			return corerr.PluginGetManifest(fmt.Sprintf("duplicate event %q", ev))
		}
		seenEvents[ev] = struct{}{}
	}

	if manifest.Type == plugin.TypePayment {
		if _, ok := seenRPC["pay"]; !ok {
			if _, ok := seenRPC["Pay"]; !ok {
				return corerr.PluginGetManifest("payment-type plugin must declare pay in rpc")
			}
		}
		if _, ok := seenEvents[plugin.EventReceivePayment]; !ok {
			return corerr.PluginGetManifest("payment-type plugin must declare the receive event")
		}
	}

	return nil
}

// StopPlugin invokes instance.Stop() if implemented and marks the
// entry inactive.
func (m *Manager) StopPlugin(ctx context.Context, name string) error {
	m.mu.Lock()
	e, ok := m.entries[name]
	m.mu.Unlock()
	if !ok {
		return corerr.ErrNotFound
	}

	if stopper, ok := e.instance.(plugin.Stopper); ok {
		if err := stopper.Stop(ctx); err != nil {
			return corerr.PluginStop(err.Error())
		}
	}

	m.mu.Lock()
	e.active = false
	m.mu.Unlock()
	return nil
}

// RemovePlugin deletes an inactive entry, refusing (false, nil) if the
// plugin is still active.
func (m *Manager) RemovePlugin(name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	if !ok {
		return false, nil
	}
	if e.active {
		return false, nil
	}
	delete(m.entries, name)
	return true, nil
}

// PluginEntry is the read-only view GetPlugins/Get returns.
type PluginEntry struct {
	Manifest plugin.Manifest
	Instance any
	Active   bool
}

// Get returns the registered entry for name.
func (m *Manager) Get(name string) (PluginEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[name]
	if !ok {
		return PluginEntry{}, false
	}
	return PluginEntry{Manifest: e.manifest, Instance: e.instance, Active: e.active}, true
}

// GetPlugins returns the registry, optionally filtered by active
// flag. A nil filter returns everything.
func (m *Manager) GetPlugins(isActive *bool) []PluginEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PluginEntry, 0, len(m.entries))
	for _, e := range m.entries {
		if isActive != nil && e.active != *isActive {
			continue
		}
		out = append(out, PluginEntry{Manifest: e.manifest, Instance: e.instance, Active: e.active})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Manifest.Name < out[j].Manifest.Name })
	return out
}

// DispatchEvent invokes eventName on every active plugin whose
// manifest declares it, concurrently, logging rather than propagating
// per-plugin errors.
func (m *Manager) DispatchEvent(ctx context.Context, eventName string, data any) {
	targets := m.pluginsForEvent(eventName)

	var g errgroup.Group
	for _, e := range targets {
		e := e
		g.Go(func() error {
			handler, ok := e.instance.(plugin.EventHandler)
			if !ok {
				return nil
			}
			if err := handler.HandleEvent(ctx, eventName, data); err != nil {
				m.logger.Error("plugin event dispatch failed", map[string]any{
					"plugin": e.manifest.Name,
					"event":  eventName,
					"error":  err.Error(),
				})
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Manager) pluginsForEvent(eventName string) []*entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*entry
	for _, e := range m.entries {
		if !e.active {
			continue
		}
		for _, ev := range e.manifest.Events {
			if ev == eventName {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// RPCHandle is one callable entry of the RPC registry: the bound
// method value for "{pluginName}/{method}".
type RPCHandle = reflect.Value

// GetRPCRegistry returns "{pluginName}/{method}" -> bound method for
// every method named in each manifest's RPC.
func (m *Manager) GetRPCRegistry() map[string]RPCHandle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]RPCHandle)
	for name, e := range m.entries {
		v := reflect.ValueOf(e.instance)
		for _, method := range e.manifest.RPC {
			if mv := v.MethodByName(method); mv.IsValid() {
				out[name+"/"+method] = mv
			}
		}
	}
	return out
}

// GracefulThrow stops every registered plugin sequentially, then
// re-raises err.
func (m *Manager) GracefulThrow(ctx context.Context, err error) error {
	m.mu.RLock()
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		if serr := m.StopPlugin(ctx, name); serr != nil {
			m.logger.Error("plugin stop failed during graceful shutdown", map[string]any{
				"plugin": name,
				"error":  serr.Error(),
			})
		}
	}
	return err
}
