package config

import (
	"fmt"
	"net/url"
	"strings"
)

// RedirectTable maps a deployment environment (APP_ENV) to the canonical
// OAuth redirect URI registered with the providers for that deployment.
type RedirectTable map[string]string

// ParseRedirectTable parses "env=uri,env=uri".  Every URI must be absolute.
// An empty input yields an empty table.
func ParseRedirectTable(s string) (RedirectTable, error) {
	t := RedirectTable{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		env, uri, ok := strings.Cut(part, "=")
		env, uri = strings.ToLower(strings.TrimSpace(env)), strings.TrimSpace(uri)
		if !ok || env == "" || uri == "" {
			return nil, fmt.Errorf("malformed entry %q", part)
		}
		u, err := url.Parse(uri)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return nil, fmt.Errorf("redirect uri for %q is not absolute: %q", env, uri)
		}
		t[env] = uri
	}
	return t, nil
}

// Resolve returns the URI for env, falling back to the "default" entry and
// finally to the local development callback.
func (t RedirectTable) Resolve(env string) string {
	if uri, ok := t[strings.ToLower(env)]; ok {
		return uri
	}
	if uri, ok := t["default"]; ok {
		return uri
	}
	return "http://localhost:8080/auth/callback"
}
