// Package coordinator drives the polling loop of the sync engine.
//
// The coordinator owns scheduling only. What happens to a folder is decided by
// sync.Manager; the coordinator decides when and for which tenants it runs:
//
//   - One cycle runs at startup, then one per configured poll interval
//   - Each cycle reads one immutable configuration snapshot
//   - The store is pinged first; if it is unreachable the cycle is aborted and
//     retried at the next interval
//   - Enabled tenants run in a bounded worker pool
//   - A tenant's enabled folders run one after the other
//
// # Usage Example
//
//	coord := coordinator.New(manager, store, sources.NewFactory(), cfgManager,
//	    coordinator.WithRecorder(recorder),
//	    coordinator.WithSyncMetrics(metrics),
//	)
//
//	go func() { _ = coord.Start(ctx) }()
//	defer coord.Stop()
//
// # Error Handling
//
// Failures stay where they happen. An item failure is handled inside its folder,
// a folder failure is counted against its tenant, and a tenant failure is logged
// without cancelling sibling tenants. Cancellation is observed between folders and
// between tenants; a cancelled cycle leaves every started write to complete.
package coordinator
