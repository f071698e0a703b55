package sceneasset

import (
	"net/url"
	"path"
	"strings"
	"sync"
)

// ResolverTable maps the URIs a model document may use for a companion file
// to that file's handle URL. Every resource is keyed by its full archive path
// and by its bare filename.
type ResolverTable struct {
	byPath map[string]string
	byBase map[string]string
}

func NewResolverTable() *ResolverTable {
	return &ResolverTable{byPath: map[string]string{}, byBase: map[string]string{}}
}

// Add registers target under name and its base filename. When two entries
// share a base filename the first one keeps the short key.
func (t *ResolverTable) Add(name, target string) {
	t.byPath[name] = target
	if base := baseName(name); base != "" {
		if _, taken := t.byBase[base]; !taken {
			t.byBase[base] = target
		}
	}
}

func (t *ResolverTable) Len() int { return len(t.byPath) }

// Lookup returns the handle URL for uri, or ok=false on a miss.
func (t *ResolverTable) Lookup(uri string) (string, bool) {
	if t == nil {
		return "", false
	}
	stripped := stripQuery(uri)
	if stripped == "" {
		return "", false
	}
	if v, ok := t.byPath[stripped]; ok {
		return v, true
	}
	if cleaned := cleanRelative(stripped); cleaned != stripped {
		if v, ok := t.byPath[cleaned]; ok {
			return v, true
		}
	}
	decoded, err := url.PathUnescape(stripped)
	if err != nil {
		decoded = stripped
	}
	if decoded != stripped {
		if v, ok := t.byPath[cleanRelative(decoded)]; ok {
			return v, true
		}
	}
	if v, ok := t.byBase[baseName(stripped)]; ok {
		return v, true
	}
	if v, ok := t.byBase[baseName(decoded)]; ok {
		return v, true
	}
	return "", false
}

// Resolve returns the handle URL for uri, or uri unchanged on a miss so the
// caller's normal loading fails loudly.
func (t *ResolverTable) Resolve(uri string) string {
	if v, ok := t.Lookup(uri); ok {
		return v
	}
	return uri
}

func stripQuery(uri string) string {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	return strings.TrimSpace(uri)
}

func cleanRelative(p string) string {
	if strings.Contains(p, "://") {
		return p
	}
	c := path.Clean(strings.ReplaceAll(p, `\`, "/"))
	return strings.TrimPrefix(c, "/")
}

// ResolutionContext holds the one active resolver table. Installing a table
// supersedes whatever was active; only one scene resolves at a time.
type ResolutionContext struct {
	mu     sync.RWMutex
	active *ResolverTable
}

// DefaultResolution is the process-wide context used by the pipeline unless
// another is injected.
var DefaultResolution = &ResolutionContext{}

func (c *ResolutionContext) Install(t *ResolverTable) {
	c.mu.Lock()
	c.active = t
	c.mu.Unlock()
}

func (c *ResolutionContext) Clear() {
	c.mu.Lock()
	c.active = nil
	c.mu.Unlock()
}

// ClearIf clears the context only when t is the active table.
func (c *ResolutionContext) ClearIf(t *ResolverTable) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t == nil || c.active != t {
		return false
	}
	c.active = nil
	return true
}

func (c *ResolutionContext) Active() *ResolverTable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

func (c *ResolutionContext) IsActive(t *ResolverTable) bool {
	return t != nil && c.Active() == t
}

// Resolve maps uri through the active table; with no active table uri is
// returned unchanged.
func (c *ResolutionContext) Resolve(uri string) string {
	return c.Active().Resolve(uri)
}

func (c *ResolutionContext) Lookup(uri string) (string, bool) {
	return c.Active().Lookup(uri)
}
