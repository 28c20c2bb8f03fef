package scanner

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/raysh454/a11yscan/internal/model"
	"github.com/raysh454/a11yscan/internal/utils"
)

type fingerprint struct {
	name     string
	category string
	pattern  *regexp.Regexp // first submatch, when present, is the version
}

var scriptFingerprints = []fingerprint{
	{"jQuery", "JavaScript library", regexp.MustCompile(`jquery[.-]?(\d+(?:\.\d+)+)?(?:\.min)?\.js`)},
	{"React", "JavaScript framework", regexp.MustCompile(`react(?:-dom)?(?:[.@-](\d+(?:\.\d+)+))?(?:\.production)?(?:\.min)?\.js`)},
	{"Vue.js", "JavaScript framework", regexp.MustCompile(`vue(?:[.@-](\d+(?:\.\d+)+))?(?:\.global)?(?:\.prod)?(?:\.min)?\.js`)},
	{"Angular", "JavaScript framework", regexp.MustCompile(`angular(?:[.@-](\d+(?:\.\d+)+))?(?:\.min)?\.js`)},
	{"Bootstrap", "UI framework", regexp.MustCompile(`bootstrap(?:[.@-](\d+(?:\.\d+)+))?(?:\.bundle)?(?:\.min)?\.js`)},
	{"Next.js", "Web framework", regexp.MustCompile(`/_next/`)},
	{"Google Tag Manager", "Tag manager", regexp.MustCompile(`googletagmanager\.com`)},
	{"Google Analytics", "Analytics", regexp.MustCompile(`google-analytics\.com|gtag/js`)},
	{"WordPress", "CMS", regexp.MustCompile(`/wp-(?:content|includes)/`)},
	{"Shopify", "Ecommerce", regexp.MustCompile(`cdn\.shopify\.com`)},
}

var generatorCategories = map[string]string{
	"wordpress": "CMS",
	"drupal":    "CMS",
	"joomla":    "CMS",
	"ghost":     "CMS",
	"wix.com":   "Site builder",
	"hugo":      "Static site generator",
	"jekyll":    "Static site generator",
	"gatsby":    "Static site generator",
}

var headerCategories = map[string]string{
	"nginx":   "Web server",
	"apache":  "Web server",
	"caddy":   "Web server",
	"iis":     "Web server",
	"php":     "Programming language",
	"asp.net": "Web framework",
	"express": "Web framework",
	"next.js": "Web framework",
}

var versionToken = regexp.MustCompile(`^v?\d+(?:\.\d+)*`)

// DetectTechStack fingerprints the page from its generator meta tag, script
// sources and the Server / X-Powered-By response headers. Results are
// de-duplicated by name; the first sighting with a version wins.
func DetectTechStack(pageURL string, doc *goquery.Document, headers http.Header) []model.Technology {
	var found []model.Technology
	index := make(map[string]int)
	add := func(t model.Technology) {
		key := strings.ToLower(t.Name)
		if i, ok := index[key]; ok {
			if found[i].Version == "" {
				found[i].Version = t.Version
			}
			return
		}
		index[key] = len(found)
		found = append(found, t)
	}

	doc.Find(`meta[name="generator"]`).Each(func(_ int, s *goquery.Selection) {
		name, version := splitProduct(attr(s, "content"), " ")
		if name == "" {
			return
		}
		cat, ok := generatorCategories[strings.ToLower(name)]
		if !ok {
			cat = "Generator"
		}
		add(model.Technology{Name: name, Category: cat, Version: version})
	})

	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		src := strings.ToLower(utils.ResolveURL(pageURL, attr(s, "src")))
		for _, fp := range scriptFingerprints {
			m := fp.pattern.FindStringSubmatch(src)
			if m == nil {
				continue
			}
			t := model.Technology{Name: fp.name, Category: fp.category}
			if len(m) > 1 {
				t.Version = m[1]
			}
			add(t)
		}
	})

	for _, h := range []string{"Server", "X-Powered-By"} {
		for _, product := range strings.Split(headers.Get(h), ",") {
			name, version := splitProduct(product, "/")
			if name == "" {
				continue
			}
			cat, ok := headerCategories[strings.ToLower(name)]
			if !ok {
				continue
			}
			add(model.Technology{Name: name, Category: cat, Version: version})
		}
	}

	return found
}

// splitProduct splits "nginx/1.25.3" or "WordPress 6.4.2" into name and version.
// Trailing comments such as "(Ubuntu)" are dropped.
func splitProduct(s, sep string) (name, version string) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if s == "" {
		return "", ""
	}
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, ""
	}
	if v := versionToken.FindString(strings.TrimSpace(s[i+len(sep):])); v != "" {
		return strings.TrimSpace(s[:i]), strings.TrimPrefix(v, "v")
	}
	return s, ""
}
