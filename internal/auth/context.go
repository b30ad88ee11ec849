package auth

import (
	"context"
	"errors"
)

type ctxKey int

const ctxServiceID ctxKey = iota

func WithService(ctx context.Context, serviceID string) context.Context {
	return context.WithValue(ctx, ctxServiceID, serviceID)
}

func ServiceID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxServiceID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("service_id not in context")
}
