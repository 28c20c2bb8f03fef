package utils

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"slices"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

var (
	ErrEmptyURL          = errors.New("empty url")
	ErrMissingHost       = errors.New("missing host")
	ErrUnsupportedScheme = errors.New("unsupported scheme")
)

// CanonicalizeOptions controls optional canonicalization policies.
type CanonicalizeOptions struct {
	DropTrackingParams     bool     // remove utm_*, gclid, fbclid and friends
	StripTrailingSlash     bool     // /a and /a/ are the same page (root "/" is kept)
	DefaultScheme          string   // assumed for schemeless input; empty means a scheme is required
	TrackingParamAllowlist []string // if non-empty, only these query params survive
}

var defaultTrackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {}, "utm_content": {},
	"gclid": {}, "fbclid": {}, "mc_cid": {}, "mc_eid": {},
}

// TargetOptions is the policy used for scan targets and cache keys.
var TargetOptions = CanonicalizeOptions{
	DropTrackingParams: true,
	StripTrailingSlash: true,
	DefaultScheme:      "https",
}

// NormalizeTarget canonicalizes a user-supplied page URL into the form used as
// job URL and cache key. Only http and https are accepted.
//
//	"Example.com/about/?utm_source=x#team" -> "https://example.com/about"
func NormalizeTarget(raw string) (string, error) {
	s, err := Canonicalize(raw, TargetOptions)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return "", fmt.Errorf("canonicalize %q: %w", raw, ErrUnsupportedScheme)
	}
	return s, nil
}

// Canonicalize returns a deterministic canonical URL string or an error.
// Hosts are lowercased and punycoded, default ports and credentials dropped,
// the path cleaned and the query sorted.
func Canonicalize(raw string, opts CanonicalizeOptions) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyURL
	}
	if opts.DefaultScheme != "" && !strings.Contains(raw, "://") {
		raw = opts.DefaultScheme + "://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("canonicalize %q: %w", raw, ErrMissingHost)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if puny, err := idna.Lookup.ToASCII(host); err == nil {
		host = puny
	}
	port := u.Port()
	switch {
	case (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443"):
		u.Host = host
	case port != "":
		u.Host = net.JoinHostPort(host, port)
	default:
		u.Host = host
	}
	u.User = nil
	u.Fragment = ""

	cleanPath := path.Clean(u.Path)
	if cleanPath == "." {
		cleanPath = "/"
	}
	if opts.StripTrailingSlash && len(cleanPath) > 1 {
		cleanPath = strings.TrimRight(cleanPath, "/")
	}
	u.Path = cleanPath
	u.RawPath = ""

	u.RawQuery = canonicalQuery(u.Query(), opts)
	return u.String(), nil
}

func canonicalQuery(q url.Values, opts CanonicalizeOptions) string {
	allow := opts.TrackingParamAllowlist
	for k := range q {
		if len(allow) > 0 {
			if !slices.Contains(allow, k) {
				q.Del(k)
			}
			continue
		}
		if opts.DropTrackingParams {
			if _, ok := defaultTrackingParams[strings.ToLower(k)]; ok {
				q.Del(k)
			}
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

// ResolveURL resolves ref against base. Unparseable refs are returned as-is.
func ResolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// SameHost reports whether a and b point at the same hostname.
func SameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ua.Hostname(), ub.Hostname())
}
