package api

import (
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/procstream/internal/logging"
)

// HTTPLoggingMiddleware logs every request at a level chosen from its status.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	logger := logging.GetLogger("http")

	attrs := []slog.Attr{
		slog.String("method", ctx.Method()),
		slog.String("path", ctx.URL().Path),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if query := ctx.URL().RawQuery; query != "" {
		attrs = append(attrs, slog.String("query", query))
	}
	if ua := ctx.Header("User-Agent"); ua != "" {
		attrs = append(attrs, slog.String("user_agent", ua))
	}

	next(ctx)

	status := ctx.Status()
	attrs = append(attrs,
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	)
	logger.LogAttrs(ctx.Context(), requestLogLevel(ctx.Method(), status), "HTTP request completed", attrs...)
}

// requestLogLevel maps a finished request to a log level.
func requestLogLevel(method string, status int) slog.Level {
	switch {
	case method == http.MethodOptions:
		return slog.LevelDebug
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

const authRealm = `Basic realm="procstream"`

// basicAuthMiddleware enforces HTTP basic auth on operations that declare a
// security requirement. EventSource clients cannot set headers, so the
// base64 credentials are also accepted in the "auth" query parameter.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	want := []byte(username + ":" + password)

	return func(ctx huma.Context, next func(huma.Context)) {
		if op := ctx.Operation(); op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		encoded := ctx.Query("auth")
		if header := ctx.Header("Authorization"); header != "" {
			var ok bool
			encoded, ok = strings.CutPrefix(header, "Basic ")
			if !ok {
				s.unauthorized(ctx, "Invalid authentication type")
				return
			}
		}
		if encoded == "" {
			s.unauthorized(ctx, "Authentication required")
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			s.unauthorized(ctx, "Invalid credentials format", err)
			return
		}
		if subtle.ConstantTimeCompare(decoded, want) != 1 {
			s.unauthorized(ctx, "Invalid credentials")
			return
		}

		next(ctx)
	}
}

func (s *Server) unauthorized(ctx huma.Context, msg string, errs ...error) {
	ctx.SetHeader("WWW-Authenticate", authRealm)
	huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg, errs...)
}
