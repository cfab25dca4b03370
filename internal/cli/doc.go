// Package cli is responsible for parsing command-line arguments, validating
// user input, and handling process-level concerns like exit codes. It builds
// the cobra command tree (validate, inspect, run, schema) and translates
// flags into configuration overrides for the application.
package cli
