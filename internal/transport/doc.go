// Package transport provides the byte-level link to the motor controller.
//
// A Link owns one connection at a time, obtained from a Dialer (TCP or
// serial). It runs a single receive goroutine, reconnects with exponential
// backoff when the connection drops, and reports connect, disconnect and
// receive events to a Handler.
//
// Received bytes are framed on the line terminator: OnReceive is called
// with everything up to and including the last terminator seen, and the
// unterminated tail is held until more data arrives. A buffer that grows
// past the configured maximum without a terminator is delivered as is.
//
// Thread Safety:
//   - All Link methods are safe for concurrent use.
//   - Handler callbacks run on the receive goroutine, one at a time, and may
//     call Send.
package transport
