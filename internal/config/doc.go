// Package config provides configuration structures and utilities for
// consentscan: scan budgets and depth tiers, browser and oracle timeouts,
// report preferences, and per-site overrides loaded from a YAML file.
package config
