package contentkey

import (
	"net/url"
	"regexp"
	"strings"
)

// Resolver derives a stable platform identifier from a page URL or a raw
// identifier candidate. An empty result means "no identifier" and callers
// must treat it as a skip condition, never an error.
type Resolver interface {
	Source() string
	Resolve(candidate string) (id string, ok bool)
}

// Registry maps source names to resolvers. Adding a platform is a resolver
// plus a detector binding, not a new conditional.
type Registry struct {
	resolvers map[string]Resolver
}

func NewRegistry(resolvers ...Resolver) *Registry {
	reg := &Registry{resolvers: make(map[string]Resolver)}
	for _, r := range resolvers {
		reg.resolvers[r.Source()] = r
	}
	return reg
}

// DefaultRegistry returns a registry with all shipped sources.
func DefaultRegistry() *Registry {
	return NewRegistry(YouTubeResolver{})
}

// Resolve returns the platform-qualified key ("youtube:<id>") for a
// candidate under the named source, or false when no identifier can be
// derived.
func (reg *Registry) Resolve(source, candidate string) (string, bool) {
	r, exists := reg.resolvers[source]
	if !exists {
		return "", false
	}
	id, ok := r.Resolve(candidate)
	if !ok {
		return "", false
	}
	return r.Source() + ":" + id, true
}

// Supported reports whether a source has a registered resolver.
func (reg *Registry) Supported(source string) bool {
	_, exists := reg.resolvers[source]
	return exists
}

// Bare video ids: alphanumeric plus - and _, at least 6 chars.
var bareIDRegex = regexp.MustCompile(`^[\w-]{6,}$`)

type YouTubeResolver struct{}

func (YouTubeResolver) Source() string { return "youtube" }

func (YouTubeResolver) Resolve(candidate string) (string, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return "", false
	}

	// A raw id is accepted as-is so callers can pass either form.
	if bareIDRegex.MatchString(candidate) && !strings.Contains(candidate, "http") {
		return candidate, true
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return "", false
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch {
	case host == "youtube.com" || strings.HasSuffix(host, ".youtube.com"):
		if v := u.Query().Get("v"); v != "" {
			return v, true
		}
		if strings.HasPrefix(u.Path, "/shorts/") {
			parts := strings.Split(strings.Trim(u.Path, "/"), "/")
			if len(parts) >= 2 && parts[1] != "" {
				return parts[1], true
			}
		}
	case host == "youtu.be":
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) >= 1 && parts[0] != "" {
			return parts[0], true
		}
	}

	return "", false
}
