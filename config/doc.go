// Package config loads slotpool runtime configuration. It exposes a Default()
// baseline, a JSON file loader, a SLOTPOOL_* environment overlay and helpers
// that turn the result into component Options.
//
// Example:
//
//	cfg, err := config.Load("/etc/slotpool.json")
//	if err != nil {
//	    return err
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//	log, _ := cfg.Log.Build()
//	sopts, _ := cfg.StorageOptions(log)
//	mgr, _ := pebblestore.Open(sopts)
package config
