package scanner

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestCheckFormLabels(t *testing.T) {
	t.Parallel()
	doc := mustDoc(t, `<form>
		<label for="a">Name</label><input id="a">
		<label>Email <input type="email"></label>
		<input aria-label="Phone">
		<input type="hidden" name="csrf">
		<input type="submit" value="Send">
		<input name="unlabelled" placeholder="Zip">
		<textarea></textarea>
	</form>`)

	if got := checkFormLabels(doc).Length(); got != 2 {
		t.Errorf("flagged %d controls, want 2", got)
	}
}

func TestCheckHeadingOrder(t *testing.T) {
	t.Parallel()
	doc := mustDoc(t, `<h2>a</h2><h3>b</h3><h5>c</h5><h2>d</h2><h4>e</h4>`)

	hits := checkHeadingOrder(doc)
	if hits.Length() != 2 {
		t.Fatalf("flagged %d headings, want 2", hits.Length())
	}
	if goquery.NodeName(hits.First()) != "h5" {
		t.Errorf("first hit = %s, want h5", goquery.NodeName(hits.First()))
	}
}

func TestCheckViewport(t *testing.T) {
	t.Parallel()
	cases := map[string]int{
		`width=device-width, initial-scale=1`:   0,
		`width=device-width, user-scalable=no`:  1,
		`width=device-width, maximum-scale=1.0`: 1,
		`width=device-width, maximum-scale=5`:   0,
	}
	for content, want := range cases {
		doc := mustDoc(t, `<head><meta name="viewport" content="`+content+`"></head>`)
		if got := checkViewport(doc).Length(); got != want {
			t.Errorf("%q: flagged %d, want %d", content, got, want)
		}
	}
}

func TestCheckLinkName_ImageAltCounts(t *testing.T) {
	t.Parallel()
	doc := mustDoc(t, `<a href="/"><img src="logo.png" alt="Home"></a><a href="/x"><img src="x.png" alt=""></a><a href="/y" aria-hidden="true"></a>`)

	if got := checkLinkName(doc).Length(); got != 1 {
		t.Errorf("flagged %d links, want 1", got)
	}
}

func TestCSSPath(t *testing.T) {
	t.Parallel()
	doc := mustDoc(t, `<html><body><div id="nav"><ul><li>a</li><li><img src="x"></li></ul></div><p><img src="y"></p></body></html>`)

	imgs := doc.Find("img")
	if got := cssPath(imgs.Eq(0)); got != "div#nav > ul:nth-child(1) > li:nth-child(2) > img:nth-child(1)" {
		t.Errorf("cssPath = %q", got)
	}
	if got := cssPath(imgs.Eq(1)); got != "html > body > p:nth-child(2) > img:nth-child(1)" {
		t.Errorf("cssPath = %q", got)
	}
}

func TestExcerpt_TruncatesAndCollapses(t *testing.T) {
	t.Parallel()
	doc := mustDoc(t, `<p>`+strings.Repeat("word   ", 100)+`</p>`)

	got := excerpt(doc.Find("p"), 40)
	if len(got) != 43 || !strings.HasSuffix(got, "...") {
		t.Errorf("excerpt = %q", got)
	}
	if strings.Contains(got, "  ") {
		t.Errorf("whitespace not collapsed: %q", got)
	}
}

func TestSplitProduct(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in, sep, name, version string
	}{
		{"nginx/1.25.3", "/", "nginx", "1.25.3"},
		{"Apache/2.4.57 (Debian)", "/", "Apache", "2.4.57"},
		{"Express", "/", "Express", ""},
		{"WordPress 6.4.2", " ", "WordPress", "6.4.2"},
		{"Hugo v0.121.0", " ", "Hugo", "0.121.0"},
		{"", "/", "", ""},
	}
	for _, tc := range cases {
		name, version := splitProduct(tc.in, tc.sep)
		if name != tc.name || version != tc.version {
			t.Errorf("splitProduct(%q) = %q, %q; want %q, %q", tc.in, name, version, tc.name, tc.version)
		}
	}
}
