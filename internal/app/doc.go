// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the run lifecycle that loads a manifest,
// opens or creates a workbook, applies port writes, evaluates, and prints
// the outputs, decoupled from any specific entrypoint like a CLI.
package app
