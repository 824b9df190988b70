// Package config provides the msgxform service configuration.
//
// A single YAML file configures the transform engine (spec directory,
// profile, error mode, evaluation budget) and the surfaces around it:
// the admin server, the optional reverse proxy, JWT-derived sessions,
// Redis reload broadcast and observability. Values not present in the
// file keep their defaults, and ${VAR} or ${VAR:-default} references are
// expanded from the environment before parsing. Unknown keys are
// rejected.
//
//	cfg, err := config.LoadConfig("msgxform.yaml")
//	if err != nil {
//	    return err
//	}
//	if err := config.ValidateConfig(cfg); err != nil {
//	    return err
//	}
//
// Watcher re-runs a reload callback after spec or profile files change,
// debouncing bursts of editor writes into one reload.
package config
