// Package writer is the producing side of the mailbox: it samples this
// process and stores a typed record every interval, tagging each envelope
// with the writer ID, host, PID and a sequence number.
package writer
