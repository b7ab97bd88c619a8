package server

import (
	"bytes"
	"compress/gzip"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/threadlens/threadlens/types"
)

type Middleware func(next fasthttp.RequestHandler) fasthttp.RequestHandler

func chain(handler fasthttp.RequestHandler, middlewares ...Middleware) fasthttp.RequestHandler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

func recoveryMiddleware(logger types.Logger) Middleware {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Panic in request handler",
						zap.Any("panic", r),
						zap.ByteString("path", ctx.Path()))
					ctx.Response.Reset()
					writeError(ctx, fasthttp.StatusInternalServerError, "internal server error")
				}
			}()
			next(ctx)
		}
	}
}

func loggingMiddleware(logger types.Logger, metrics types.MetricsManager) Middleware {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			start := time.Now()
			next(ctx)
			duration := time.Since(start)

			status := ctx.Response.StatusCode()

			logger.Debug("Request handled",
				zap.ByteString("method", ctx.Method()),
				zap.ByteString("path", ctx.Path()),
				zap.Int("status", status),
				zap.Duration("duration", duration))

			if metrics != nil {
				labels := map[string]string{
					"method": string(ctx.Method()),
					"status": statusClass(status),
				}
				metrics.Counter("http_requests_total", labels).Inc()
				metrics.Histogram("http_request_duration_seconds",
					[]float64{0.001, 0.01, 0.1, 1.0, 5.0},
					map[string]string{"method": string(ctx.Method())},
				).ObserveDuration(start)
			}
		}
	}
}

func statusClass(status int) string {
	switch {
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// rateLimiter is a fixed-window per-client counter. Entries for idle
// clients are dropped when the window rolls over.
type rateLimiter struct {
	limit   int
	mu      sync.Mutex
	window  int64
	counts  map[string]int
	windowD time.Duration
}

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		limit:   perMinute,
		counts:  make(map[string]int),
		windowD: time.Minute,
	}
}

func (rl *rateLimiter) allow(client string) bool {
	now := time.Now().UnixNano() / int64(rl.windowD)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now != rl.window {
		rl.window = now
		rl.counts = make(map[string]int)
	}

	rl.counts[client]++
	return rl.counts[client] <= rl.limit
}

func rateLimitMiddleware(logger types.Logger, perMinute int) Middleware {
	limiter := newRateLimiter(perMinute)

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			client := ctx.RemoteIP().String()

			if !limiter.allow(client) {
				logger.Warn("Rate limit exceeded", zap.String("client", client))
				writeError(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next(ctx)
		}
	}
}

const compressionThreshold = 1024

var (
	gzipWriterPool = sync.Pool{
		New: func() interface{} {
			w, _ := gzip.NewWriterLevel(nil, gzip.DefaultCompression)
			return w
		},
	}
	brotliWriterPool = sync.Pool{
		New: func() interface{} {
			return brotli.NewWriterLevel(nil, brotli.DefaultCompression)
		},
	}
)

// compressionMiddleware compresses JSON responses above the threshold,
// preferring brotli when the client accepts it.
func compressionMiddleware() Middleware {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			next(ctx)

			body := ctx.Response.Body()
			if len(body) < compressionThreshold {
				return
			}
			if len(ctx.Response.Header.ContentEncoding()) > 0 {
				return
			}

			accepted := string(ctx.Request.Header.Peek(fasthttp.HeaderAcceptEncoding))

			switch {
			case strings.Contains(accepted, "br"):
				if compressed, err := compressBrotli(body); err == nil {
					ctx.Response.SetBody(compressed)
					ctx.Response.Header.SetContentEncoding("br")
				}
			case strings.Contains(accepted, "gzip"):
				if compressed, err := compressGzip(body); err == nil {
					ctx.Response.SetBody(compressed)
					ctx.Response.Header.SetContentEncoding("gzip")
				}
			default:
				return
			}

			ctx.Response.Header.Add(fasthttp.HeaderVary, fasthttp.HeaderAcceptEncoding)
		}
	}
}

func compressBrotli(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := brotliWriterPool.Get().(*brotli.Writer)
	defer brotliWriterPool.Put(w)
	w.Reset(&buf)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func compressGzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := gzipWriterPool.Get().(*gzip.Writer)
	defer gzipWriterPool.Put(w)
	w.Reset(&buf)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

const identityKey = "identity"

// authMiddleware resolves the bearer token to an identity and stores it in
// the request's user values. Requests without a valid token proceed as
// anonymous; handlers that need a principal call RequireIdentity.
func authMiddleware(verifier types.Verifier) Middleware {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			header := string(ctx.Request.Header.Peek(fasthttp.HeaderAuthorization))

			if token, ok := strings.CutPrefix(header, "Bearer "); ok {
				if identity, valid := verifier.Verify(token); valid {
					ctx.SetUserValue(identityKey, identity)
				}
			}

			next(ctx)
		}
	}
}

// RequireIdentity returns the authenticated principal or writes a 401 and
// reports false.
func RequireIdentity(ctx *fasthttp.RequestCtx) (*types.Identity, bool) {
	identity, ok := ctx.UserValue(identityKey).(*types.Identity)
	if !ok || identity == nil {
		writeError(ctx, fasthttp.StatusUnauthorized, "authentication required")
		return nil, false
	}
	return identity, true
}
