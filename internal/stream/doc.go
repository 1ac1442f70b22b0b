// ABOUTME: Package stream fetches audio bytes for one stream session
// ABOUTME: The request text comes from the server's strm command

// Package stream implements the data channel: a TCP connection to the
// address named by a strm start command, carrying the server's HTTP request
// verbatim and copying the response body into the session's RingBuffer.
//
// The channel never retries on its own. Failures are reported as events and
// the session decides what to do next.
package stream
