package utils

import (
	"errors"
	"testing"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in   string
		opts CanonicalizeOptions
		want string
	}{
		{
			in:   "HTTP://Example.COM:80/foo/../bar/?b=2&a=1#frag",
			opts: CanonicalizeOptions{},
			want: "http://example.com/bar?a=1&b=2",
		},
		{
			in:   "https://user:pw@example.com:443/index.html#section",
			opts: CanonicalizeOptions{},
			want: "https://example.com/index.html",
		},
		{
			in:   "example.com/page?utm_source=x&utm_medium=y&z=1",
			opts: CanonicalizeOptions{DefaultScheme: "https", DropTrackingParams: true},
			want: "https://example.com/page?z=1",
		},
		{
			in:   "https://例え.テスト/a",
			opts: CanonicalizeOptions{},
			// punycode-encoded host
			want: "https://xn--r8jz45g.xn--zckzah/a",
		},
		{
			in:   "https://example.com/foo/",
			opts: CanonicalizeOptions{StripTrailingSlash: true},
			want: "https://example.com/foo",
		},
		{
			in:   "https://example.com:8443/?keep=1&drop=2",
			opts: CanonicalizeOptions{TrackingParamAllowlist: []string{"keep"}},
			want: "https://example.com:8443/?keep=1",
		},
	}

	for _, tt := range tests {
		got, err := Canonicalize(tt.in, tt.opts)
		if err != nil {
			t.Fatalf("canonicalize(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalize_Errors(t *testing.T) {
	if _, err := Canonicalize("   ", CanonicalizeOptions{}); !errors.Is(err, ErrEmptyURL) {
		t.Errorf("err = %v, want ErrEmptyURL", err)
	}
	if _, err := Canonicalize("/just/a/path", CanonicalizeOptions{}); !errors.Is(err, ErrMissingHost) {
		t.Errorf("err = %v, want ErrMissingHost", err)
	}
}

// ─── NormalizeTarget ───────────────────────────────────────────────────

func TestNormalizeTarget(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"Example.com/about/?utm_source=x#team", "https://example.com/about"},
		{"https://EXAMPLE.com", "https://example.com/"},
		{"https://example.com/", "https://example.com/"},
		{"http://example.com:80/a/b/", "http://example.com/a/b"},
	}
	for _, tt := range tests {
		got, err := NormalizeTarget(tt.in)
		if err != nil {
			t.Fatalf("NormalizeTarget(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("NormalizeTarget(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeTarget_SameKeyForEquivalentURLs(t *testing.T) {
	t.Parallel()
	a, _ := NormalizeTarget("example.com/shop/")
	b, _ := NormalizeTarget("HTTPS://example.com:443/shop#cart")
	if a != b {
		t.Errorf("%q != %q", a, b)
	}
}

func TestNormalizeTarget_RejectsOtherSchemes(t *testing.T) {
	t.Parallel()
	if _, err := NormalizeTarget("ftp://example.com/file"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("err = %v, want ErrUnsupportedScheme", err)
	}
}

// ─── Helpers ───────────────────────────────────────────────────────────

func TestResolveURL(t *testing.T) {
	t.Parallel()
	base := "https://example.com/app/page"
	tests := map[string]string{
		"/static/app.js":        "https://example.com/static/app.js",
		"vendor.js":             "https://example.com/app/vendor.js",
		"https://cdn.test/x.js": "https://cdn.test/x.js",
		"//cdn.test/jquery.js":  "https://cdn.test/jquery.js",
	}
	for ref, want := range tests {
		if got := ResolveURL(base, ref); got != want {
			t.Errorf("ResolveURL(%q) = %q, want %q", ref, got, want)
		}
	}
}

func TestSameHost(t *testing.T) {
	t.Parallel()
	if !SameHost("https://Example.com/a", "http://example.com:8080/b") {
		t.Error("expected same host")
	}
	if SameHost("https://example.com", "https://other.com") {
		t.Error("expected different hosts")
	}
}
