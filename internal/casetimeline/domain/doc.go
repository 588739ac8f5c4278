// Package domain holds the case progression types shared by the engine, the
// orchestrator and the persistence boundary. It has no I/O and no dependencies
// beyond uuid.
package domain
