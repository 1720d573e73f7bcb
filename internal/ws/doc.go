// Package ws provides the WebSocket watch stream of the mailbox.
//
// On connect the client receives the segment info, then the current payload,
// then one message per observed change. The stream only reads.
//
// Message Types (Server → Client):
//   - info: segment info
//   - update: new payload (raw JSON, or text when not JSON)
//   - cleared: the mailbox became empty
//   - error: the payload could not be read
//   - pong: reply to a client ping
//
// Example Usage:
//
//	handler := ws.NewHandler(ch, 500*time.Millisecond, metrics, logger)
//	router.GET("/stream", handler.HandleConnection)
package ws
