// Package control implements the external control protocol that lets a remote
// client nudge the pose of a box on the master.
//
// # Message format
//
// Every message is a short text line:
//
//	byte 0     target selector, one of the configured single characters
//	byte 1     operation: '0' = position delta, '1' = rotation delta
//	bytes 2..  three whitespace-separated decimal numbers
//
// For example "00 1.0 0.5 -2.0" adds (1.0, 0.5, -2.0) to the position of the
// box selected by '0', and "11 0.2 0 0" adds 0.2 to the alpha rotation of the
// box selected by '1'. Updates are relative and accumulate.
//
// # Error handling
//
// Empty messages are ignored. Unknown selectors, unknown operations and
// malformed numbers are logged and rejected without touching the scene; a
// message is applied in full or not at all. None of these errors are fatal,
// and nothing is sent back to the sender.
//
// # Sources
//
// Messages reach the Controller through any of three sources, all of which
// may run at the same time as the frame loop:
//   - WebsocketSource: one message per websocket frame
//   - HTTPHandler: one message per POST body, channel from the URL
//   - RedisSource: one message per pub/sub payload
//
// The channel index supplied by a source is logged but never changes what a
// message does.
package control
