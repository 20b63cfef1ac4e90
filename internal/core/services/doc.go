// Package services implements the driving port interfaces.
// Services contain the sync engine's business logic and orchestrate
// calls to driven ports (adapters).
//
// Services depend only on ports, so every store and connector can be
// swapped for an in-memory double in tests.
package services
