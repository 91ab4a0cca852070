package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"runtime/debug"
	"time"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("tenant", TenantFromContext(r.Context())),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Unwrap exposes the underlying writer so http.ResponseController can reach
// Flusher on the streaming endpoint.
func (w *respWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Recover returns a middleware that recovers from panics and logs them.
// http.ErrAbortHandler is re-panicked so the server resets the connection,
// which is the required signal for a failed response mid-stream.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler { //nolint:errorlint // sentinel comparison per net/http contract
						panic(err)
					}
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// TenantHeader is the request header that scopes every API operation.
const TenantHeader = "X-Tenant"

type tenantCtxKey struct{}

// tenantPattern constrains tenant ids to schema-safe identifiers.
var tenantPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// RequireTenant returns a middleware that extracts the tenant from the
// X-Tenant header, validates it, and stores it in the request context.
// Requests without a valid tenant are rejected before any handler runs.
func RequireTenant() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := r.Header.Get(TenantHeader)
			if tenant == "" {
				WriteError(w, ErrorParams{
					Code:    http.StatusBadRequest,
					ErrCode: "tenant_required",
					Err:     errors.New("X-Tenant header is required"),
				})
				return
			}
			if !tenantPattern.MatchString(tenant) {
				WriteError(w, ErrorParams{
					Code:    http.StatusBadRequest,
					ErrCode: "invalid_tenant",
					Err:     errors.New("tenant must match ^[a-z][a-z0-9_]{0,62}$"),
				})
				return
			}

			ctx := context.WithValue(r.Context(), tenantCtxKey{}, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFromContext returns the tenant stored by RequireTenant, or "".
func TenantFromContext(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantCtxKey{}).(string)
	return tenant
}
