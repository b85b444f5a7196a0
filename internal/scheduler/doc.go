// Package scheduler keeps the inference backend's resident models within the
// GPU memory budget declared by the registry. It is structured into small
// files by concern:
//
//   - scheduler.go: core Scheduler type, constructor, backend capability.
//   - config.go: Config and package defaults; New applies defaults.
//   - errors.go: error values and helpers (IsInsufficientVRAM).
//   - ensure.go: EnsureLoaded fast and slow paths.
//   - evict.go: LRU eviction of non-pinned models.
//   - unload.go: manual unload from the management surface.
//   - reconcile.go: adopt models the backend already holds at startup.
//   - status.go: Loaded/Status/GPUStats reporting helpers.
//   - events.go, eventpub_memory.go: lifecycle event publishing.
//   - metrics.go: prometheus collectors.
//
// All mutations of the loaded-model map happen while holding loadMu, so the
// eviction decision and the accounting update form one critical section.
// mu only guards reads of the map for the fast path and reporting.
package scheduler
