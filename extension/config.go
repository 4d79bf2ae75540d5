package extension

import "time"

// Config holds the billing extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.billing" or "billing" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableScheduler prevents the renewal sweep from being scheduled.
	DisableScheduler bool `json:"disable_scheduler" mapstructure:"disable_scheduler" yaml:"disable_scheduler"`

	// RenewalSchedule is the cron spec of the renewal sweep, evaluated in
	// UTC (default: "5 0 * * *").
	RenewalSchedule string `json:"renewal_schedule" mapstructure:"renewal_schedule" yaml:"renewal_schedule"`

	// OperationTimeout bounds every billing operation, lock wait included
	// (default: 30s).
	OperationTimeout time.Duration `json:"operation_timeout" mapstructure:"operation_timeout" yaml:"operation_timeout"`

	// Currency, PaymentType and TaxRate are applied to new customers that
	// do not set them (defaults: INR, Prepaid, 18).
	Currency    string `json:"currency" mapstructure:"currency" yaml:"currency"`
	PaymentType string `json:"payment_type" mapstructure:"payment_type" yaml:"payment_type"`
	TaxRate     int64  `json:"tax_rate" mapstructure:"tax_rate" yaml:"tax_rate"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RenewalSchedule:  "5 0 * * *",
		OperationTimeout: 30 * time.Second,
		Currency:         "INR",
		PaymentType:      "Prepaid",
		TaxRate:          18,
	}
}
