// Package stabilize owns the detection stabilization engine: a stateful,
// per-source multi-object tracker that consumes raw per-frame detections
// from an upstream perception model and emits temporally filtered,
// identity-stable detections.
//
// Responsibilities: spatial (IoU) association between raw detections and
// persistent tracks, dual-threshold confidence gating, track lifecycle
// (creation, confirmation, gap decay, removal), and per-source statistics.
// Key types: Detection, Track, Stabilizer.
//
// The engine never performs I/O. Transport, configuration loading, and
// persistence live in their own packages and call into this one.
package stabilize
