// Package logger provides structured logging for camhub.
//
// It wraps log/slog with a JSON (default) or text handler, a process-wide
// level that can change at runtime, and redaction of sensitive attributes:
// values carrying the chs_ channel-secret prefix are partially masked, and
// string values under keys that look like secrets are replaced entirely.
//
// Library packages take a *slog.Logger; use Logger.Slog to hand one out.
package logger
