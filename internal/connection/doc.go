// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns the single WebSocket connection to the realtime server
//   - Presents the auth credential at handshake time
//   - Handles reconnection with exponential backoff up to a ceiling
//   - Replays nothing itself: on every transition into Connected it
//     publishes a synthetic connected event, and the subscription
//     registry and chat sessions replay their own state off it
//   - Forwards inbound frames to the Event Router
package connection
