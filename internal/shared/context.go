package shared

import "context"

type serverIDContextKey struct{}

// ContextWithServerID stores the calling game server's id in context.
func ContextWithServerID(ctx context.Context, serverID string) context.Context {
	return context.WithValue(ctx, serverIDContextKey{}, serverID)
}

// ServerIDFromContext extracts the calling game server's id from context.
func ServerIDFromContext(ctx context.Context) string {
	serverID, _ := ctx.Value(serverIDContextKey{}).(string)
	return serverID
}
