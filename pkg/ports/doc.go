/*
Package ports defines the driven ports (interfaces) for the region annotation engine.

These interfaces decouple the core logic from the rendering engine that owns
the image and its annotation store, allowing the core to run against a browser
engine, a headless in-memory engine, or a shared Redis-backed store.

# Key Interfaces

  - Renderer: Surface lifecycle, image decode/display, tool state and completion listeners.
  - RecordStore: The engine-owned annotation store, addressed by surface and tool.
  - Splicer: Optional in-place removal supported by some stores.
  - ImageSource: Resolves an uploaded image reference into an engine image id.
  - DistributedLocker: Serializes mutations across replicas sharing a store.
  - Workspace: The command surface consumed by presentation adapters.
*/
package ports
