package utils

import (
	"context"
)

type contextKey string

const (
	ContextRequestIDKey contextKey = "requestID"
	ContextAPIKeyKey    contextKey = "apiKey"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextRequestIDKey, id)
}

func GetRequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ContextRequestIDKey).(string)
	return id, ok
}
