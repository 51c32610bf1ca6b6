// Package logger provides structured logging functionality for the application.
//
// It utilizes Go's standard library log/slog package to implement structured JSON (or
// text) logging with configurable log levels. Every handler built here redacts
// credentials through the redact package before records are written.
package logger
