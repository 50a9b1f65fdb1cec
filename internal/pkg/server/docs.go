// Package server implements the order-synchronization server terminals connect to.
//
// The server performs the following steps:
//  1. Binds a TCP listener. A bind failure is returned to the caller as a
//     *BindError and is never retried.
//  2. Subscribes the request handler to the order store, so every accepted
//     mutation is broadcast to all connected terminals.
//  3. Accepts connections. Each one becomes a session, which is registered
//     before its read and write loops start, so a broadcast never misses a
//     terminal that has just connected.
//  4. Each session decodes frames and hands them to the handler until the
//     terminal disconnects or sends an undecodable frame. Only that session
//     is closed; the accept loop and other sessions are unaffected.
//  5. Stop closes the listener, asks every session to close, waits for them
//     for a bounded grace period and then forces any remaining sockets shut.
//
// The number of concurrent sessions is capped. While the cap is reached the
// accept loop waits for a session to finish before accepting again.
package server
