// Package strategy defines the load balancing strategy interface and
// implements the selection algorithms:
//
//   - Round Robin: Sequential distribution across the candidate backends
//   - Least Connections: Routes to the backend with fewest active connections,
//     ties broken by pool order
//
// Strategies are pure over the slice they are handed. Filtering by health,
// sticky sessions and locking are the caller's job (see loadbalancer.Pool).
package strategy
