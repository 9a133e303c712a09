// Package relay implements the per-connection proxy exchange: frame the
// client's HTTP/1.1 request from the raw socket, route it to a backend,
// forward the bytes verbatim, drain the reply and write it back.
//
// Framing is deliberately lenient. A body shorter than its declared length
// is forwarded as captured once the client stops sending, and the upstream
// reply is considered complete on EOF, when a declared length is satisfied,
// or after an idle gap with no new bytes.
package relay
