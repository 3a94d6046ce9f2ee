package log

import "context"

type Logger interface {
	Debug(ctx context.Context, format string, args ...interface{})
	Info(ctx context.Context, format string, args ...interface{})
	Notice(ctx context.Context, format string, args ...interface{})
	Warn(ctx context.Context, format string, args ...interface{})
	Error(ctx context.Context, format string, args ...interface{})
	Critical(ctx context.Context, format string, args ...interface{})
}

type fieldsKey struct{}

// WithField returns a context whose log lines carry key=value.
func WithField(ctx context.Context, key string, value interface{}) context.Context {
	parent, _ := ctx.Value(fieldsKey{}).(map[string]interface{})
	fields := make(map[string]interface{}, len(parent)+1)
	for k, v := range parent {
		fields[k] = v
	}
	fields[key] = value
	return context.WithValue(ctx, fieldsKey{}, fields)
}

// Fields returns the key/value pairs attached with WithField.
func Fields(ctx context.Context) map[string]interface{} {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsKey{}).(map[string]interface{})
	return fields
}
