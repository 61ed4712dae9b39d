// Package logging builds the *zap.Logger every warden daemon and CLI
// command carries through its context, selecting a production or
// development encoder config the way the root command's
// PersistentPreRunE bootstraps logging from a single --verbose flag.
package logging

import "go.uber.org/zap"

// New builds a logger for name (used as the "component" field on every
// entry). verbose selects zap's development config (console-friendly,
// debug level, stack traces on warn) over the production config
// (JSON, info level).
func New(name string, verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return log.With(zap.String("component", name)), nil
}
