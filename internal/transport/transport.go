// Package transport names the narrow contract a secure channel uses to
// reach the physical link underneath it, per SPEC_FULL §6.5: serial port
// drivers and OS I/O primitives sit behind this interface and are never
// imported by the channel package itself.
package transport

import "io"

// Transport is any duplex byte stream a security context's wire chunks can
// be carried over: a UART device file, a USB-CDC handle, or (for tests and
// the reference harness) an in-memory pipe.
type Transport = io.ReadWriter
