package auth

import (
	"context"

	"github.com/techdengue/analytics/internal/utils"
)

// HeaderAPIKey carries the raw key on requests.
const HeaderAPIKey = "X-API-Key"

func WithKey(ctx context.Context, info KeyInfo) context.Context {
	return context.WithValue(ctx, utils.ContextAPIKeyKey, info)
}

// FromContext returns the validated key of the request, if any.
func FromContext(ctx context.Context) (KeyInfo, bool) {
	info, ok := ctx.Value(utils.ContextAPIKeyKey).(KeyInfo)
	return info, ok
}
