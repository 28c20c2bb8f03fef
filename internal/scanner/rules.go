package scanner

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/raysh454/a11yscan/internal/model"
)

const (
	EngineAxe    = "axe"
	EngineHTMLCS = "htmlcs"
)

// Rule is one DOM check. Check returns the offending elements; page-level
// violations return the element the fix belongs on (html, head).
type Rule struct {
	Code          string
	Engine        string
	Type          model.IssueType
	Impact        string
	Functionality string
	Message       string
	Weight        float64
	Check         func(doc *goquery.Document) *goquery.Selection
}

func (r Rule) issue(s *goquery.Selection, contextLen int) model.Issue {
	return model.Issue{
		Code:          r.Code,
		Message:       r.Message,
		Type:          r.Type,
		Selector:      cssPath(s),
		Context:       excerpt(s, contextLen),
		Impact:        r.Impact,
		Functionality: r.Functionality,
	}
}

// DefaultRules returns a fresh copy of the built-in rule set.
func DefaultRules() []Rule {
	return []Rule{
		{
			Code: "image-alt", Engine: EngineAxe, Type: model.IssueError, Impact: "critical",
			Functionality: "Images", Weight: 5,
			Message: "Images must have alternate text",
			Check:   checkImageAlt,
		},
		{
			Code: "html-has-lang", Engine: EngineAxe, Type: model.IssueError, Impact: "serious",
			Functionality: "Page structure", Weight: 8,
			Message: "The html element must have a lang attribute",
			Check:   checkHTMLLang,
		},
		{
			Code: "document-title", Engine: EngineHTMLCS, Type: model.IssueError, Impact: "serious",
			Functionality: "Page structure", Weight: 8,
			Message: "Documents must have a non-empty title element",
			Check:   checkDocumentTitle,
		},
		{
			Code: "label", Engine: EngineAxe, Type: model.IssueError, Impact: "critical",
			Functionality: "Forms", Weight: 6,
			Message: "Form elements must have labels",
			Check:   checkFormLabels,
		},
		{
			Code: "link-name", Engine: EngineAxe, Type: model.IssueError, Impact: "serious",
			Functionality: "Navigation", Weight: 4,
			Message: "Links must have discernible text",
			Check:   checkLinkName,
		},
		{
			Code: "button-name", Engine: EngineAxe, Type: model.IssueError, Impact: "critical",
			Functionality: "Forms", Weight: 5,
			Message: "Buttons must have discernible text",
			Check:   checkButtonName,
		},
		{
			Code: "heading-order", Engine: EngineHTMLCS, Type: model.IssueWarning, Impact: "moderate",
			Functionality: "Navigation", Weight: 2,
			Message: "Heading levels should only increase by one",
			Check:   checkHeadingOrder,
		},
		{
			Code: "duplicate-id", Engine: EngineHTMLCS, Type: model.IssueWarning, Impact: "minor",
			Functionality: "Page structure", Weight: 1,
			Message: "id attribute values must be unique",
			Check:   checkDuplicateIDs,
		},
		{
			Code: "frame-title", Engine: EngineAxe, Type: model.IssueError, Impact: "serious",
			Functionality: "Media", Weight: 4,
			Message: "Frames must have an accessible name",
			Check:   checkFrameTitle,
		},
		{
			Code: "meta-viewport", Engine: EngineAxe, Type: model.IssueError, Impact: "critical",
			Functionality: "Mobile", Weight: 6,
			Message: "Zooming and scaling must not be disabled",
			Check:   checkViewport,
		},
		{
			Code: "no-autoplay-audio", Engine: EngineAxe, Type: model.IssueWarning, Impact: "moderate",
			Functionality: "Media", Weight: 3,
			Message: "Media should not autoplay with sound",
			Check:   checkAutoplay,
		},
		{
			Code: "landmark-one-main", Engine: EngineHTMLCS, Type: model.IssueNotice, Impact: "minor",
			Functionality: "Navigation", Weight: 1,
			Message: "Document should have one main landmark",
			Check:   checkMainLandmark,
		},
	}
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

func hasAttr(s *goquery.Selection, name string) bool {
	_, ok := s.Attr(name)
	return ok
}

func hiddenFromAT(s *goquery.Selection) bool {
	if attr(s, "aria-hidden") == "true" {
		return true
	}
	role := attr(s, "role")
	return role == "presentation" || role == "none"
}

// accessibleName approximates the computed name: ARIA attributes, title,
// visible text and the alt text of contained images.
func accessibleName(s *goquery.Selection) string {
	for _, a := range []string{"aria-label", "aria-labelledby", "title"} {
		if v := attr(s, a); v != "" {
			return v
		}
	}
	if t := strings.TrimSpace(s.Text()); t != "" {
		return t
	}
	var alt string
	s.Find("img[alt]").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		alt = attr(img, "alt")
		return alt == ""
	})
	return alt
}

func none(doc *goquery.Document) *goquery.Selection {
	return doc.Selection.Slice(0, 0)
}

func checkImageAlt(doc *goquery.Document) *goquery.Selection {
	return doc.Find("img").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return !hasAttr(s, "alt") && !hiddenFromAT(s) && attr(s, "aria-label") == ""
	})
}

func checkHTMLLang(doc *goquery.Document) *goquery.Selection {
	return doc.Find("html").First().FilterFunction(func(_ int, s *goquery.Selection) bool {
		return attr(s, "lang") == "" && attr(s, "xml:lang") == ""
	})
}

func checkDocumentTitle(doc *goquery.Document) *goquery.Selection {
	if strings.TrimSpace(doc.Find("head title").First().Text()) != "" {
		return none(doc)
	}
	return doc.Find("head").First()
}

var unlabeledInputTypes = map[string]bool{
	"hidden": true, "submit": true, "button": true, "reset": true, "image": true,
}

func checkFormLabels(doc *goquery.Document) *goquery.Selection {
	labelled := make(map[string]bool)
	doc.Find("label[for]").Each(func(_ int, l *goquery.Selection) {
		if strings.TrimSpace(l.Text()) != "" {
			labelled[attr(l, "for")] = true
		}
	})
	return doc.Find("input, select, textarea").FilterFunction(func(_ int, s *goquery.Selection) bool {
		if goquery.NodeName(s) == "input" && unlabeledInputTypes[strings.ToLower(attr(s, "type"))] {
			return false
		}
		if id := attr(s, "id"); id != "" && labelled[id] {
			return false
		}
		if s.Closest("label").Length() > 0 {
			return false
		}
		return attr(s, "aria-label") == "" && attr(s, "aria-labelledby") == "" && attr(s, "title") == ""
	})
}

func checkLinkName(doc *goquery.Document) *goquery.Selection {
	return doc.Find("a[href]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return !hiddenFromAT(s) && accessibleName(s) == ""
	})
}

func checkButtonName(doc *goquery.Document) *goquery.Selection {
	return doc.Find("button, input[type=button], input[type=image], [role=button]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		if hiddenFromAT(s) {
			return false
		}
		if goquery.NodeName(s) == "input" {
			if strings.EqualFold(attr(s, "type"), "image") {
				return attr(s, "alt") == "" && attr(s, "aria-label") == ""
			}
			return attr(s, "value") == "" && attr(s, "aria-label") == ""
		}
		return accessibleName(s) == ""
	})
}

func checkHeadingOrder(doc *goquery.Document) *goquery.Selection {
	prev := 0
	return doc.Find("h1, h2, h3, h4, h5, h6").FilterFunction(func(_ int, s *goquery.Selection) bool {
		level, err := strconv.Atoi(strings.TrimPrefix(goquery.NodeName(s), "h"))
		if err != nil {
			return false
		}
		skipped := prev != 0 && level > prev+1
		prev = level
		return skipped
	})
}

func checkDuplicateIDs(doc *goquery.Document) *goquery.Selection {
	seen := make(map[string]bool)
	return doc.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		id := attr(s, "id")
		if id == "" {
			return false
		}
		if seen[id] {
			return true
		}
		seen[id] = true
		return false
	})
}

func checkFrameTitle(doc *goquery.Document) *goquery.Selection {
	return doc.Find("iframe, frame").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return !hiddenFromAT(s) && attr(s, "title") == "" && attr(s, "aria-label") == ""
	})
}

// checkViewport flags user-scalable=no and maximum-scale below 2.
func checkViewport(doc *goquery.Document) *goquery.Selection {
	return doc.Find(`meta[name="viewport"]`).FilterFunction(func(_ int, s *goquery.Selection) bool {
		for _, part := range strings.Split(attr(s, "content"), ",") {
			k, v, ok := strings.Cut(part, "=")
			if !ok {
				continue
			}
			k = strings.ToLower(strings.TrimSpace(k))
			v = strings.ToLower(strings.TrimSpace(v))
			switch k {
			case "user-scalable":
				if v == "no" || v == "0" {
					return true
				}
			case "maximum-scale":
				if f, err := strconv.ParseFloat(v, 64); err == nil && f < 2 {
					return true
				}
			}
		}
		return false
	})
}

func checkAutoplay(doc *goquery.Document) *goquery.Selection {
	return doc.Find("video[autoplay], audio[autoplay]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return !hasAttr(s, "muted")
	})
}

func checkMainLandmark(doc *goquery.Document) *goquery.Selection {
	if doc.Find(`main, [role="main"]`).Length() > 0 {
		return none(doc)
	}
	return doc.Find("body").First()
}

// cssPath builds a selector for s, anchored at the nearest ancestor with an id.
func cssPath(s *goquery.Selection) string {
	var parts []string
	for cur := s.First(); cur.Length() > 0; cur = cur.Parent() {
		name := goquery.NodeName(cur)
		if id := attr(cur, "id"); id != "" && !strings.ContainsAny(id, " \t\n") {
			parts = append(parts, name+"#"+id)
			break
		}
		if name == "html" || name == "head" || name == "body" {
			parts = append(parts, name)
			if name == "html" {
				break
			}
			continue
		}
		parts = append(parts, name+":nth-child("+strconv.Itoa(cur.Index()+1)+")")
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

func excerpt(s *goquery.Selection, limit int) string {
	h, err := goquery.OuterHtml(s.First())
	if err != nil {
		return ""
	}
	// page-level elements carry the whole document; only keep the open tag
	if name := goquery.NodeName(s); name == "html" || name == "head" || name == "body" {
		if i := strings.IndexByte(h, '>'); i >= 0 {
			h = h[:i+1]
		}
	}
	h = strings.Join(strings.Fields(h), " ")
	if len(h) > limit {
		h = h[:limit] + "..."
	}
	return h
}
