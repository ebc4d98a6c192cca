// Package server implements the MCP (Model Context Protocol) server for
// contact-angle measurement.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
//   - droplet_measure: Full measurement of one image
//   - droplet_edges: Edge detection and contour selection summary
//   - droplet_baseline: Substrate baseline estimate
//   - droplet_scale_bar: Calibration from the image's scale bar (OCR)
//
// # Image Caching
//
// Decoded images are cached by path for the lifetime of the server, so
// repeated tools on one image decode it once.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with code
// -32000. A measurement that aborted at a pipeline stage carries
// FailureData ({stage, reason, detail}); other errors carry the Go error
// string. Invalid params use -32602 and unknown methods -32601.
package server
