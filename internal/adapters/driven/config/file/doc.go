// Package file provides file-based implementations of driven port interfaces.
// These adapters persist data to the local filesystem.
//
// Adapters:
//   - ConfigStore: TOML-based configuration with FLEETSYNC_ environment
//     overrides and fsnotify-driven reload
package file
