// Package config handles configuration loading, parsing, and validation
// from various sources (environment variables, files). It provides type-safe
// access to the API host, local storage, connectivity monitor and logging
// settings while keeping configuration details separate from the data layer.
package config
