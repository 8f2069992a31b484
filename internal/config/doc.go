// Package config loads the habitd daemon configuration from a JSON file and
// fills in defaults for anything the file leaves out. The zero configuration
// runs entirely in memory, which is what the tests and local development use.
package config
