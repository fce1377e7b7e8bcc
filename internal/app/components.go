package app

import (
	"github.com/civicportal/portal-sync/internal/artifacts"
	"github.com/civicportal/portal-sync/internal/config"
	"github.com/civicportal/portal-sync/internal/store"
	"github.com/civicportal/portal-sync/internal/sync/coordinator"
	"github.com/civicportal/portal-sync/internal/telemetry"
)

// Components groups the long-lived parts of the engine
type Components struct {
	// Config serves the current configuration snapshot
	Config config.Manager

	// Store is the persistence gateway
	Store store.Store

	// Coordinator runs the polling cycles
	Coordinator coordinator.Coordinator

	// Telemetry owns the tracer and meter providers
	Telemetry *telemetry.Telemetry

	// Lock is the exclusive claim on the output root
	Lock *artifacts.Lock
}
