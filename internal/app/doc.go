// Package app contains the application logic behind the fnnx command. It
// owns the logger, the compiled-in plugin modules and the loaded runtime
// configuration, and exposes one method per use case (validate, inspect,
// run, schema), decoupled from any specific entrypoint like a CLI.
package app
