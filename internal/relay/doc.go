// Package relay implements the real-time notification relay using the actor pattern.
//
// A single Hub goroutine owns the connection Registry (all clients plus the reviewer subset)
// and processes register, unregister, delivery and heartbeat-sweep commands serially through
// a command channel (no mutexes around the registry). Per-connection writer goroutines
// perform the socket writes so a slow peer never stalls the hub. The Monitor drives the
// two-strike heartbeat sweep on a clockwork ticker.
package relay
