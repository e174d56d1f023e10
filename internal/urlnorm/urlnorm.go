// Package urlnorm canonicalizes scan targets. The freshness cache matches on
// exact URL strings, so equivalent spellings of one target must normalize to
// one key or the cache silently fragments.
package urlnorm

import (
	"errors"
	"net"
	"net/url"
	"path"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

var (
	ErrEmptyURL    = errors.New("empty URL")
	ErrMissingHost = errors.New("missing host")
	ErrBadScheme   = errors.New("scheme must be http or https")
	ErrUnparseable = errors.New("unparseable URL")
)

// Tracking params that never change page content. Stripped so analytics
// noise does not defeat the freshness cache.
var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {}, "utm_content": {},
	"gclid": {}, "fbclid": {}, "mc_cid": {}, "mc_eid": {},
}

// Canonicalize returns the deterministic canonical form of a scan target:
// lowercased scheme and host, IDN hosts as punycode, default ports and
// userinfo and fragments dropped, path cleaned with the trailing slash
// removed (except root), tracking params stripped, and the remaining query
// sorted. Only absolute http(s) URLs are accepted.
func Canonicalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrUnparseable
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", ErrBadScheme
	}
	if u.Host == "" {
		return "", ErrMissingHost
	}
	u.Scheme = scheme

	host := strings.ToLower(u.Hostname())
	if puny, err := idna.Lookup.ToASCII(host); err == nil {
		host = puny
	}
	// Keep a port only when it is not the scheme default.
	port := u.Port()
	switch {
	case (scheme == "http" && port == "80") || (scheme == "https" && port == "443"), port == "":
		u.Host = host
	default:
		u.Host = net.JoinHostPort(host, port)
	}

	u.User = nil
	u.Fragment = ""

	cleanPath := path.Clean(u.Path)
	if cleanPath == "." {
		cleanPath = "/"
	}
	if len(cleanPath) > 1 {
		cleanPath = strings.TrimRight(cleanPath, "/")
	}
	u.Path = cleanPath

	u.RawQuery = normalizeQuery(u.Query())
	return u.String(), nil
}

func normalizeQuery(q url.Values) string {
	for k := range q {
		if _, ok := trackingParams[strings.ToLower(k)]; ok {
			q.Del(k)
		}
	}

	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := url.Values{}
	for _, k := range keys {
		values := q[k]
		sort.Strings(values)
		for _, v := range values {
			ordered.Add(k, v)
		}
	}
	return ordered.Encode()
}
