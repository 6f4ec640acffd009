// Package config defines the gateway configuration, loads it from YAML with
// environment variable substitution, validates it and watches the file for
// changes.
//
// Environment variables are referenced as ${VAR} or ${VAR:-default}; "$$"
// yields a literal dollar sign.
package config
