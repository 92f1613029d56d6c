package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/csvguard/internal/core"
	"github.com/JonMunkholm/csvguard/internal/logging"
	mw "github.com/JonMunkholm/csvguard/internal/web/middleware"
)

// WithRequestMetadata adds the client IP, User-Agent and the request logger
// to ctx for the pipeline and its audit record.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithIPAddress(ctx, mw.ClientIP(r))
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return core.ContextWithLogger(ctx, logging.FromContext(ctx))
}
