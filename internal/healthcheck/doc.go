// Package healthcheck implements periodic health checking for backend servers.
// Each cycle checks every backend concurrently, either with a bare TCP
// connect or with an HTTP request to a health path, and records the outcome
// on the backend. Check failures never escape the loop; they surface only
// through the backend's health flag, a log line and the returned Result.
package healthcheck
