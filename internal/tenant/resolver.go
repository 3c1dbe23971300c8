package tenant

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"posbridge/config"
	"posbridge/internal/extract"
	"posbridge/models"
)

// legacyProjects resolves storefront projects created before the project
// table existed.
var legacyProjects = map[string]string{"820503": "msk"}

// Hosting and tunnel domains whose first label says nothing about the city.
var genericHostSuffixes = []string{
	"vercel.app", "netlify.app", "herokuapp.com", "onrender.com",
	"trycloudflare.com", "loca.lt", "ngrok.io", "ngrok-free.app", "ngrok.app",
}

// Hints are the request attributes a tenant can be derived from.
type Hints struct {
	QueryCity string
	ProjectID string
	PageID    string
	BodyCity  string
	Referer   string
	Host      string
}

// UnknownTenantError is returned when no tenant matches and there is no
// default to fall back to.
type UnknownTenantError struct {
	Key string
}

func (e *UnknownTenantError) Error() string {
	if e.Key == "" {
		return "unknown tenant: no city could be resolved"
	}
	return fmt.Sprintf("unknown tenant %q", e.Key)
}

// Resolver maps request hints onto the configured tenants.
type Resolver struct {
	dir *config.TenantDirectory
}

func NewResolver(dir *config.TenantDirectory) *Resolver {
	if dir == nil {
		dir = &config.TenantDirectory{}
	}
	return &Resolver{dir: dir}
}

// Key derives the tenant key from the hints. The first source that yields a
// non-empty normalized value wins; the result may name an unconfigured
// tenant.
func (r *Resolver) Key(h Hints) string {
	if k := extract.NormalizeString(h.QueryCity); k != "" {
		return k
	}
	if k := lookupID(r.dir.ProjectIDToCity, h.ProjectID); k != "" {
		return k
	}
	if k := lookupID(legacyProjects, h.ProjectID); k != "" {
		return k
	}
	if k := lookupID(r.dir.PageIDToCity, h.PageID); k != "" {
		return k
	}
	if k := extract.NormalizeString(h.BodyCity); k != "" {
		return k
	}
	if k := refererSegment(h.Referer); k != "" {
		return k
	}
	return hostLabel(h.Host)
}

// Resolve returns the tenant for the hints, falling back to the default
// tenant and then to the only configured tenant.
func (r *Resolver) Resolve(h Hints) (models.Tenant, error) {
	key := r.Key(h)
	if t, ok := r.dir.Tenants[key]; ok {
		return t, nil
	}
	if t, ok := r.dir.Tenants[extract.NormalizeString(r.dir.DefaultCity)]; ok {
		return t, nil
	}
	if len(r.dir.Tenants) == 1 {
		for _, t := range r.dir.Tenants {
			return t, nil
		}
	}
	return models.Tenant{}, &UnknownTenantError{Key: key}
}

func lookupID(table map[string]string, id string) string {
	id = strings.TrimSpace(id)
	if id == "" || len(table) == 0 {
		return ""
	}
	if v := extract.NormalizeString(table[id]); v != "" {
		return v
	}
	// "0820503" and "820503.0" name the same project
	if f, err := strconv.ParseFloat(id, 64); err == nil {
		return extract.NormalizeString(table[strconv.FormatFloat(f, 'f', -1, 64)])
	}
	return ""
}

func refererSegment(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return ""
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if seg == "" {
			continue
		}
		if unescaped, err := url.PathUnescape(seg); err == nil {
			seg = unescaped
		}
		return extract.NormalizeString(seg)
	}
	return ""
}

func hostLabel(host string) string {
	host = extract.NormalizeString(host)
	if i := strings.IndexByte(host, ','); i >= 0 {
		host = strings.TrimSpace(host[:i]) // proxies may append hops
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" || host == "localhost" || net.ParseIP(strings.Trim(host, "[]")) != nil {
		return ""
	}
	for _, suffix := range genericHostSuffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return ""
		}
	}
	label := strings.SplitN(host, ".", 2)[0]
	if label == "www" || !strings.Contains(host, ".") {
		return ""
	}
	return label
}
