// Package types provides shared data structures for the tool surface.
//
// Core Types:
//   - Service: Service provider definition
//   - Tool: Service tool descriptor
//   - Parameter: Tool input description
//   - Context: Execution context for a call
//   - Result: Uniform operation result (success, data, error, code, timestamp)
//
// Request Types:
//   - ExecuteRequest: Service tool execution
//   - StreamMessage: Watch stream frame
//
// Example Usage:
//
//	res := types.Success(map[string]interface{}{"written": true})
//	fail := types.Failure("empty", "segment is empty")
package types
