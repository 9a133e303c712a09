// Package admin exposes the operator control surface over HTTP: current
// status, switching the selection algorithm, toggling sticky sessions and
// the Prometheus metrics endpoint.
//
//	GET  /status      algorithm, sticky flag and per-backend state
//	PUT  /algorithm   {"algorithm": "least"}
//	PUT  /sticky      {"enabled": true}
//	GET  /metrics     Prometheus exposition
package admin
