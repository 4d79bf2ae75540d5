package extension

import (
	"time"

	"github.com/xraph/billing"
	"github.com/xraph/billing/lock"
	"github.com/xraph/billing/plugin"
	"github.com/xraph/billing/store"
)

// Option configures the billing Forge extension.
type Option func(*Extension)

// WithStore sets the store for the billing engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLocker sets the per-customer locker, e.g. a Redis lease shared by
// several processes.
func WithLocker(l lock.Locker) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, billing.WithLocker(l))
	}
}

// WithEngineOption passes a billing.Option through to the underlying engine.
func WithEngineOption(opt billing.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a billing plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, billing.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDisableScheduler prevents the renewal sweep from being scheduled.
func WithDisableScheduler() Option {
	return func(e *Extension) { e.config.DisableScheduler = true }
}

// WithRenewalSchedule sets the cron spec of the renewal sweep.
func WithRenewalSchedule(spec string) Option {
	return func(e *Extension) { e.config.RenewalSchedule = spec }
}

// WithOperationTimeout bounds every billing operation.
func WithOperationTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.OperationTimeout = d }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
