// Package config loads and validates engine configuration.
//
// Configuration is YAML with ${VAR} environment substitution. Load reads
// the raw file, LoadWithDefaults fills unset optional fields, and
// LoadAndValidate additionally checks required fields and value ranges.
package config
