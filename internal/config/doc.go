// Package config provides configuration loading and validation for the
// letstalk tools. It handles YAML-based configuration with struct validation
// and falls back to built-in defaults when no config file is present.
package config
