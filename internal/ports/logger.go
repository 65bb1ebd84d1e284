package ports

import "context"

// Logger is the structured logging boundary used across the engine. Fields
// travel as an optional map so adapters can render them however their backend
// prefers (plain text, zap JSON).
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	// Error logs err alongside the message at Error level.
	Error(ctx context.Context, err error, msg string, fields ...map[string]interface{})
}
