// Package master holds the master-side infrastructure that surrounds the
// frame loop: the render node registry, the health monitor that probes
// registered nodes, and the hub that streams encoded frames to them.
//
// # Architecture
//
//	┌──────────────────────────────────────┐
//	│               MASTER                 │
//	├──────────────────────────────────────┤
//	│  Registry       POST /register       │
//	│   - render nodes in join order       │
//	│   - last known health status         │
//	│                                      │
//	│  HealthMonitor  GET <node>/health    │
//	│   - 3 failures mark a node unhealthy │
//	│   - status changes fed back to the   │
//	│     registry and the hub             │
//	│                                      │
//	│  Hub            GET /frames?node=id  │
//	│   - one websocket per subscription   │
//	│   - newest frame wins per subscriber │
//	└──────────────────────────────────────┘
//
// Frames handed to Hub.Publish are never split or merged: each websocket
// binary message carries exactly one codec buffer. A subscriber that falls
// behind skips stale frames instead of queueing them, so a render node always
// converges on the master's latest scene.
package master
