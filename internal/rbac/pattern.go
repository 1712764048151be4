package rbac

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/authcore/internal/domain"
)

// ErrInvalidPattern is returned for grant paths that cannot be compiled.
var ErrInvalidPattern = errors.New("invalid path pattern")

// Pattern is a grant path compiled into a chi route tree.
//
// Syntax: literal segments, ":name" for exactly one segment, and a final "*"
// or "*name" for one or more trailing segments. A single trailing slash on
// either side is ignored. Matching is case-sensitive, like the router.
type Pattern struct {
	raw      string
	method   string
	trailing bool
	wildcard string
	mux      *chi.Mux
}

var noopHandler = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

// CompilePattern compiles raw for every HTTP method.
func CompilePattern(raw string) (*Pattern, error) {
	return CompileGrant("", raw)
}

// CompileGrant compiles raw so that it matches only method. An empty method
// matches any method.
func CompileGrant(method, raw string) (p *Pattern, err error) {
	route, wildcard, err := chiRoute(raw)
	if err != nil {
		return nil, err
	}

	p = &Pattern{
		raw:      raw,
		method:   domain.NormalizeMethod(method),
		trailing: strings.HasSuffix(route, "*"),
		wildcard: wildcard,
		mux:      chi.NewRouter(),
	}

	// chi panics on routes it cannot parse and on unsupported methods.
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, raw, r)
		}
	}()

	routes := []string{route}
	if route != "/" && !p.trailing {
		routes = append(routes, route+"/")
	}
	for _, r := range routes {
		if p.method == "" {
			p.mux.Handle(r, noopHandler)
		} else {
			p.mux.Method(p.method, r, noopHandler)
		}
	}
	return p, nil
}

// MustCompilePattern is like CompilePattern but panics on error.
func MustCompilePattern(raw string) *Pattern {
	p, err := CompilePattern(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the pattern as written.
func (p *Pattern) String() string { return p.raw }

// Match reports whether method and path are matched by the pattern.
func (p *Pattern) Match(method, path string) bool {
	return p.match(chi.NewRouteContext(), method, path)
}

// Params returns the named values captured from path, or nil when the
// pattern does not match.
func (p *Pattern) Params(method, path string) map[string]string {
	rctx := chi.NewRouteContext()
	if !p.match(rctx, method, path) {
		return nil
	}

	params := make(map[string]string, len(rctx.URLParams.Keys))
	for i, key := range rctx.URLParams.Keys {
		value := rctx.URLParams.Values[i]
		if key == "*" {
			if p.wildcard == "" {
				continue
			}
			key = p.wildcard
		}
		params[key] = value
	}
	return params
}

// match runs the route tree. chi lets a wildcard capture nothing, a grant
// wildcard needs at least one segment.
func (p *Pattern) match(rctx *chi.Context, method, path string) bool {
	if !p.mux.Match(rctx, domain.NormalizeMethod(method), path) {
		return false
	}
	return !p.trailing || rctx.URLParam("*") != ""
}

// chiRoute translates raw into chi route syntax. It returns the name given
// to a trailing wildcard, if any.
func chiRoute(raw string) (route, wildcard string, err error) {
	if !strings.HasPrefix(raw, "/") {
		return "", "", fmt.Errorf("%w %q: must start with /", ErrInvalidPattern, raw)
	}

	trimmed := strings.TrimSuffix(raw, "/")
	if trimmed == "" {
		return "/", "", nil
	}

	segments := strings.Split(trimmed[1:], "/")
	out := make([]string, len(segments))
	for i, seg := range segments {
		switch {
		case seg == "":
			return "", "", fmt.Errorf("%w %q: empty segment", ErrInvalidPattern, raw)
		case strings.HasPrefix(seg, ":"):
			name := seg[1:]
			if name == "" || strings.ContainsAny(name, "{}*:") {
				return "", "", fmt.Errorf("%w %q: bad parameter name %q", ErrInvalidPattern, raw, seg)
			}
			out[i] = "{" + name + "}"
		case strings.HasPrefix(seg, "*"):
			if i != len(segments)-1 {
				return "", "", fmt.Errorf("%w %q: wildcard must be last", ErrInvalidPattern, raw)
			}
			wildcard = seg[1:]
			out[i] = "*"
		case strings.ContainsAny(seg, "{}*"):
			return "", "", fmt.Errorf("%w %q: reserved character in %q", ErrInvalidPattern, raw, seg)
		default:
			out[i] = seg
		}
	}
	return "/" + strings.Join(out, "/"), wildcard, nil
}
