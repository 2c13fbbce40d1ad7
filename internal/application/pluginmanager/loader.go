package pluginmanager

import (
	"fmt"
	goplugin "plugin"

	"github.com/paymentfabric/slashpay-engine/internal/domain/plugin"
)

// loadGoPlugin resolves a filesystem path to a Module by opening it
// as a Go plugin (.so) and looking up its exported NewModule symbol.
// This is the default Config.Loader; callers running without
// dynamically loaded plugins never reach it because every entryPoint
// they use is pre-resolved in Config.Plugins.
func loadGoPlugin(path string) (plugin.Module, error) {
	p, err := goplugin.Open(path)
	if err != nil {
		return nil, err
	}
	sym, err := p.Lookup("NewModule")
	if err != nil {
		return nil, err
	}
	mod, ok := sym.(plugin.Module)
	if !ok {
		return nil, fmt.Errorf("pluginmanager: %s: NewModule does not implement plugin.Module", path)
	}
	return mod, nil
}
