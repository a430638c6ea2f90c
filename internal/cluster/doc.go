// Package cluster wires the scene into the per-frame synchronization cycle
// shared by the master and its render nodes.
//
// # Overview
//
// One master owns the authoritative scene. Render nodes register with it,
// subscribe to its frame stream and apply every frame before drawing:
//
//	              ┌──────────────────────┐
//	  control ──▶ │        Master        │
//	  messages    │ PreSync ─▶ Encode    │
//	              └──────────┬───────────┘
//	                         │ one buffer per frame
//	      ┌──────────────────┼──────────────────┐
//	      ▼                  ▼                  ▼
//	┌───────────┐      ┌───────────┐      ┌───────────┐
//	│ Render 1  │      │ Render 2  │      │ Render 3  │
//	│ Decode    │      │ Decode    │      │ Decode    │
//	│ Draw      │      │ Draw      │      │ Draw      │
//	└───────────┘      └───────────┘      └───────────┘
//
// # Hooks
//
// App implements the three Hooks the frame driver calls:
//   - PreSync: master only, samples the frame clock
//   - Encode: master only, after PreSync and after the frame's control mutations
//   - Decode: render nodes, before the drawer reads the scene
//
// These are the only points at which a render node's scene changes. The
// master does not decode its own buffer: doing so would overwrite a control
// delta that landed between Encode and Decode.
//
// # Transport
//
// Frames travel over a websocket per render node (see DialFrames). Each
// binary message is exactly one codec buffer with no added header, so the
// positional wire format is preserved end to end.
//
// # Registration
//
// Render nodes announce themselves with POST /register (RegisterRequest) and
// check the master's GET /scene Layout before accepting frames, so a node
// built from a different scene config fails at startup instead of at its
// first frame. PostJSON and GetJSON carry these small JSON exchanges.
//
// # Failure handling
//
// A framing error on a render node means the two sides disagree on the
// protocol shape. Receive returns it and the render binary exits; carrying
// on would leave the node silently out of sync with the master.
package cluster
