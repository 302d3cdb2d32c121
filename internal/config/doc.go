// Package config loads service settings from defaults, a YAML or TOML file,
// a dotenv file and MQ_* environment variables, and holds the live parallel
// task limit the scheduler reads on every admission decision.
package config
