// Package server exposes a protocol.Dispatcher over the network.
//
// Three transports share one dispatcher:
//
//   - TCP: the native protocol. A connection starts in raw mode, where each
//     read is one request and replies carry no terminator. The first read
//     containing a newline switches the connection to line mode: requests
//     and replies are newline terminated.
//   - HTTP: GET /?msg=<request>[&lang=<client>] answers with the reply as a
//     text/html body. GET / without msg renders a status page listing the
//     sources. /healthz and /metrics are served alongside.
//   - WebSocket: /ws carries one request per text message and one reply per
//     message.
//
// TCP and WebSocket connections keep one protocol.Session for their
// lifetime; each HTTP request is its own session.
package server
