// Package backend holds the runtime state of a single upstream server:
// its address, advisory health flag, last check time and the live count
// of relayed connections.
package backend
