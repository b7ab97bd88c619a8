package server

import (
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/threadlens/threadlens/types"
)

// Router matches method plus path against registered patterns. Static
// segments must match exactly; "{name}" segments capture the path value
// into the request's user values under that name.
type Router struct {
	static  map[string]fasthttp.RequestHandler
	dynamic []*route
}

type route struct {
	method   string
	segments []string
	handler  fasthttp.RequestHandler
}

func NewRouter() *Router {
	return &Router{
		static: make(map[string]fasthttp.RequestHandler),
	}
}

func (r *Router) Handle(method, pattern string, handler fasthttp.RequestHandler) error {
	if handler == nil {
		return types.ErrHandlerIsNil
	}

	if !strings.Contains(pattern, "{") {
		r.static[method+" "+pattern] = handler
		return nil
	}

	r.dynamic = append(r.dynamic, &route{
		method:   method,
		segments: splitPath(pattern),
		handler:  handler,
	})
	return nil
}

func (r *Router) GET(pattern string, handler fasthttp.RequestHandler) error {
	return r.Handle(fasthttp.MethodGet, pattern, handler)
}

func (r *Router) POST(pattern string, handler fasthttp.RequestHandler) error {
	return r.Handle(fasthttp.MethodPost, pattern, handler)
}

func (r *Router) PUT(pattern string, handler fasthttp.RequestHandler) error {
	return r.Handle(fasthttp.MethodPut, pattern, handler)
}

func (r *Router) DELETE(pattern string, handler fasthttp.RequestHandler) error {
	return r.Handle(fasthttp.MethodDelete, pattern, handler)
}

// Lookup resolves the request to a handler, filling captured path params
// into ctx user values. Returns nil when nothing matches.
func (r *Router) Lookup(ctx *fasthttp.RequestCtx) fasthttp.RequestHandler {
	method := string(ctx.Method())
	path := string(ctx.Path())

	if handler, exists := r.static[method+" "+path]; exists {
		return handler
	}

	pathSegments := splitPath(path)

	for _, candidate := range r.dynamic {
		if candidate.method != method || len(candidate.segments) != len(pathSegments) {
			continue
		}

		if params, ok := matchSegments(candidate.segments, pathSegments); ok {
			for name, value := range params {
				ctx.SetUserValue(name, value)
			}
			return candidate.handler
		}
	}

	return nil
}

func matchSegments(pattern, path []string) (map[string]string, bool) {
	var params map[string]string

	for i, segment := range pattern {
		if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
			if params == nil {
				params = make(map[string]string, 2)
			}
			params[segment[1:len(segment)-1]] = path[i]
			continue
		}
		if segment != path[i] {
			return nil, false
		}
	}

	return params, true
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}
