// Package control implements RosettaPad's local status/control server: a
// loopback-only, line-delimited JSON protocol for inspecting and nudging a
// running bridge (spec.md §10 supplemented features). It deliberately
// carries none of the password-authentication handshake the upstream API
// server pattern uses (see DESIGN.md) — the control surface never accepts
// remote connections and exposes no device-spoofing secret worth
// protecting behind one.
package control

import (
	"context"
	"log/slog"
	"strings"
)

// Request is one parsed command line.
type Request struct {
	Ctx    context.Context
	Params map[string]string
	Args   string
}

// Response holds the JSON payload written back to the client.
type Response struct {
	JSON string
}

// HandlerFunc answers one Request by populating Response.
type HandlerFunc func(req *Request, res *Response, logger *slog.Logger) error

// Router matches a command path like "pairing/show" against registered
// handlers, with "{name}" placeholders for path parameters.
type Router struct {
	routes []routeEntry
}

type routeEntry struct {
	parts   []string
	names   []string
	handler HandlerFunc
}

// NewRouter returns an empty Router.
func NewRouter() *Router { return &Router{} }

// Register registers a handler for a path pattern such as "driver/{name}/rescan".
func (r *Router) Register(pattern string, handler HandlerFunc) {
	parts := strings.Split(strings.ToLower(pattern), "/")
	names := make([]string, len(parts))
	for i, p := range parts {
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			names[i] = p[1 : len(p)-1]
		}
	}
	r.routes = append(r.routes, routeEntry{parts: parts, names: names, handler: handler})
}

// Match finds the handler for path, returning any path parameters.
func (r *Router) Match(path string) (HandlerFunc, map[string]string) {
	parts := strings.Split(strings.ToLower(path), "/")
	for _, rt := range r.routes {
		if len(rt.parts) != len(parts) {
			continue
		}
		params := map[string]string{}
		ok := true
		for i, part := range rt.parts {
			if rt.names[i] != "" {
				params[rt.names[i]] = parts[i]
				continue
			}
			if part != parts[i] {
				ok = false
				break
			}
		}
		if ok {
			return rt.handler, params
		}
	}
	return nil, nil
}
