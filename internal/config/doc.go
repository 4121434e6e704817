// Package config loads the llmbridge binary configuration with viper and maps
// it onto the plain config structs the library packages take. Nothing outside
// cmd/ should import it.
package config
