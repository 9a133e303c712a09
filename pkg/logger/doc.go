// Package logger builds the application's structured logger on log/slog.
// Production environments log JSON; every other environment logs text.
// Each record carries the environment name.
package logger
