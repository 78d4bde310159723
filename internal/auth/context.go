package auth

import "context"

type customerIDKey struct{}

func ContextWithCustomerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, customerIDKey{}, id)
}

func CustomerIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(customerIDKey{}).(string)
	return id, ok && id != ""
}
