package middleware

import (
	"context"

	"google.golang.org/grpc/metadata"
)

const (
	RequestIDHeader = "x-request-id"
	UserIDHeader    = "x-user-id"
)

// fromMetadata returns the first value of key in the incoming gRPC metadata.
func fromMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if val := md.Get(key); len(val) > 0 {
		return val[0]
	}
	return ""
}

func RequestID(ctx context.Context) string {
	return fromMetadata(ctx, RequestIDHeader)
}

// UserID is the caller, usually a picker or driver id set by the gateway.
func UserID(ctx context.Context) string {
	return fromMetadata(ctx, UserIDHeader)
}
