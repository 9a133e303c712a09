// Package loadbalancer owns the backend pool and the selection decision:
// health filtering with full-pool fallback, sticky-by-ip pinning and
// dispatch to the active strategy under a single pool lock.
package loadbalancer
