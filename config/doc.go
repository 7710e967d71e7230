// Package config loads layered configuration for tiered binaries.
//
// Values are read from a YAML file, then a .env file, then environment
// variables carrying the TIERED_ prefix, using Viper for the merge.
// Structs that implement ApplyDefaults and Validate have both called
// after unmarshalling, and `validate` struct tags are checked.
//
// # Usage
//
//	var cfg AppConfig
//	err := config.Load("tieredctl", &cfg, config.WithConfigFile(path))
//
// TIERED_STAGES_MEMORY_MAX_ENTRIES=500 overrides stages.memory.max_entries.
package config
