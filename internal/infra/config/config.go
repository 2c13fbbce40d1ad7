// Package config loads engine tuning knobs from the environment:
// struct tags carry the env key and default, setDefaultConfig binds
// them by reflection, and viper.Unmarshal decodes into the typed
// struct.
package config

import (
	"fmt"
	"reflect"

	"github.com/spf13/viper"
)

const envPrefix = "SLASHPAY"

// Config holds every environment-tunable knob the engine reads at
// startup. Fields are exported so viper.Unmarshal can populate them.
type Config struct {
	StoreDriver string `mapstructure:"STORE_DRIVER" envDefault:"inmemory" envInfo:"Store backend: inmemory | sqlite"`
	SqliteDSN   string `mapstructure:"SQLITE_DSN" envDefault:"slashpay.db" envInfo:"SQLite data source name, used when STORE_DRIVER=sqlite"`

	TransportBaseURL string `mapstructure:"TRANSPORT_BASE_URL" envDefault:"" envInfo:"Base URL the transport publishes slashpay.json files under"`

	LogLevel string `mapstructure:"LOG_LEVEL" envDefault:"info" envInfo:"Log verbosity: debug | info | warn | error"`

	PluginTablePath string `mapstructure:"PLUGIN_TABLE_PATH" envDefault:"" envInfo:"Path to the plugin name-to-entrypoint table, JSON-encoded"`

	RecurringOrderBatchSize int `mapstructure:"RECURRING_ORDER_BATCH_SIZE" envDefault:"25" envInfo:"Recurring-order batch size; not read by the engine, which uses the fixed order.BatchSize"`

	OutboxPollInterval string `mapstructure:"OUTBOX_POLL_INTERVAL" envDefault:"2s" envInfo:"Outbox dispatcher poll interval, as a time.Duration string"`
	OutboxBatchSize    int    `mapstructure:"OUTBOX_BATCH_SIZE" envDefault:"50" envInfo:"Max outbox rows dispatched per poll"`

	HTTPAddr string `mapstructure:"HTTP_ADDR" envDefault:":8088" envInfo:"Listen address for the read-only status API"`
}

// Load reads SLASHPAY_-prefixed environment variables into a Config,
// applying the envDefault tag for anything unset.
func Load() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := setDefaultConfig(v); err != nil {
		return nil, fmt.Errorf("config: setting defaults: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding into struct: %w", err)
	}

	return &cfg, nil
}

func setDefaultConfig(v *viper.Viper) error {
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		key := f.Tag.Get("mapstructure")
		if def := f.Tag.Get("envDefault"); def != "" {
			v.SetDefault(key, def)
		}
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("binding env var for key %s: %w", key, err)
		}
	}
	return nil
}
