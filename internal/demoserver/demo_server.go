// Package demoserver serves a small shop whose pages carry known
// accessibility defects. Each page has numbered versions that fix the defects
// step by step, switchable at runtime, so rescans and report diffs can be
// demonstrated against a live target.
package demoserver

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"
)

// DemoServer is a simple HTTP server hosting the fixture pages.
type DemoServer struct {
	cfg      Config
	pages    map[string]PageDefinition
	versions map[string]int // path -> current version
	mu       sync.RWMutex
}

// NewDemoServer creates a new demo server instance.
func NewDemoServer(cfg Config) *DemoServer {
	if cfg.InitialVersion < 1 {
		cfg.InitialVersion = 1
	}
	pageMap := make(map[string]PageDefinition)
	versions := make(map[string]int)

	for _, p := range GetAllPages() {
		pageMap[p.Path] = p
		versions[p.Path] = clampVersion(p, cfg.InitialVersion)
	}

	return &DemoServer{
		cfg:      cfg,
		pages:    pageMap,
		versions: versions,
	}
}

// Handler returns the routes of the demo site.
func (s *DemoServer) Handler() http.Handler {
	mux := http.NewServeMux()

	for path := range s.pages {
		p := path
		if p == "/" {
			mux.HandleFunc("/{$}", s.pageHandler(p))
			continue
		}
		mux.HandleFunc(p, s.pageHandler(p))
	}

	// Control panel for version switching
	mux.HandleFunc("/demo/control", s.controlPanelHandler)
	mux.HandleFunc("/demo/set-version", s.setVersionHandler)
	mux.HandleFunc("/demo/get-versions", s.getVersionsHandler)
	mux.HandleFunc("/demo/bump-all", s.bumpAllVersionsHandler)
	mux.HandleFunc("/demo/reset", s.resetVersionsHandler)

	mux.HandleFunc("/static/", s.staticHandler)
	return mux
}

// Start listens on the configured port until the server fails.
func (s *DemoServer) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	fmt.Printf("Demo server starting on http://localhost%s\n", addr)
	fmt.Printf("Control panel at http://localhost%s/demo/control\n", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// Version returns the version currently served for path.
func (s *DemoServer) Version(path string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[path]
	return v, ok
}

// SetVersion switches path to version, capped to the versions that exist.
func (s *DemoServer) SetVersion(path string, version int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[path]
	if !ok {
		return 0, false
	}
	s.versions[path] = clampVersion(p, version)
	return s.versions[path], true
}

func maxVersion(p PageDefinition) int {
	maxV := 1
	for v := range p.Versions {
		if v > maxV {
			maxV = v
		}
	}
	return maxV
}

func clampVersion(p PageDefinition, v int) int {
	if v < 1 {
		return 1
	}
	if m := maxVersion(p); v > m {
		return m
	}
	return v
}

// pageHandler returns a handler for a specific page path.
func (s *DemoServer) pageHandler(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		pageDef, ok := s.pages[path]
		version := s.versions[path]
		s.mu.RUnlock()

		if !ok {
			http.NotFound(w, r)
			return
		}

		// Fall back to the closest lower version
		pageVersion, ok := pageDef.Versions[version]
		for v := version - 1; !ok && v >= 1; v-- {
			pageVersion, ok = pageDef.Versions[v]
		}

		for k, v := range pageVersion.Headers {
			w.Header().Set(k, v)
		}
		contentType := pageVersion.ContentType
		if contentType == "" {
			contentType = "text/html; charset=utf-8"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("X-Demo-Version", strconv.Itoa(version))

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(pageVersion.HTML))
	}
}

// staticHandler serves placeholder static files.
func (s *DemoServer) staticHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	_, _ = w.Write([]byte(`// Demo static file: ` + r.URL.Path + "\n"))
}

// PageInfo describes a page on the control endpoints.
type PageInfo struct {
	Path              string   `json:"path"`
	Description       string   `json:"description"`
	CurrentVersion    int      `json:"current_version"`
	AvailableVersions []int    `json:"available_versions"`
	Defects           []string `json:"defects"`
}

func (s *DemoServer) pageInfos() []PageInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pages := make([]PageInfo, 0, len(s.pages))
	for path, pageDef := range s.pages {
		versions := make([]int, 0, len(pageDef.Versions))
		for v := range pageDef.Versions {
			versions = append(versions, v)
		}
		sort.Ints(versions)
		current := s.versions[path]
		defects := pageDef.Versions[current].Defects
		if defects == nil {
			defects = []string{}
		}
		pages = append(pages, PageInfo{
			Path:              path,
			Description:       pageDef.Description,
			CurrentVersion:    current,
			AvailableVersions: versions,
			Defects:           defects,
		})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Path < pages[j].Path })
	return pages
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// controlPanelHandler serves the control panel for version management.
func (s *DemoServer) controlPanelHandler(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Pages []PageInfo
		Port  int
	}{
		Pages: s.pageInfos(),
		Port:  s.cfg.Port,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := controlPanel.Execute(w, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// setVersionHandler sets the version for a specific page.
func (s *DemoServer) setVersionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := r.FormValue("path")
	version, err := strconv.Atoi(r.FormValue("version"))
	if err != nil {
		http.Error(w, "Invalid version number", http.StatusBadRequest)
		return
	}

	applied, ok := s.SetVersion(path, version)
	if !ok {
		http.Error(w, "Unknown page", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{
		"success": true,
		"path":    path,
		"version": applied,
	})
}

// getVersionsHandler returns the current versions of all pages.
func (s *DemoServer) getVersionsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.pageInfos())
}

// bumpAllVersionsHandler moves every page one fix forward.
func (s *DemoServer) bumpAllVersionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	for path := range s.versions {
		s.versions[path] = clampVersion(s.pages[path], s.versions[path]+1)
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"success": true,
		"message": "All versions bumped",
	})
}

// resetVersionsHandler resets all pages to version 1.
func (s *DemoServer) resetVersionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	for path := range s.versions {
		s.versions[path] = 1
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"success": true,
		"message": "All versions reset to 1",
	})
}

var controlPanel = template.Must(template.New("control").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <title>Demo Shop Control Panel</title>
    <style>
        body { font-family: system-ui, sans-serif; max-width: 960px; margin: 0 auto; padding: 20px; }
        .page-card { border: 1px solid #ddd; border-radius: 6px; padding: 12px 16px; margin: 12px 0; }
        .defects { color: #b00020; }
    </style>
</head>
<body>
<main>
    <h1>Demo Shop Control Panel</h1>
    <p>Scan a page, switch it to a later version, rescan with use_cache=false and compare the reports.</p>
    <form method="post" action="/demo/bump-all"><button type="submit">Fix one step on every page</button></form>
    <form method="post" action="/demo/reset"><button type="submit">Reset all pages to version 1</button></form>
    {{range .Pages}}
    <section class="page-card">
        <h2><a href="{{.Path}}">{{.Path}}</a></h2>
        <p>{{.Description}}</p>
        <p>Serving version {{.CurrentVersion}} of {{len .AvailableVersions}}.</p>
        {{if .Defects}}<p class="defects">Expected findings: {{range $i, $d := .Defects}}{{if $i}}, {{end}}{{$d}}{{end}}</p>{{else}}<p>No known defects.</p>{{end}}
        {{$path := .Path}}
        {{range .AvailableVersions}}
        <form method="post" action="/demo/set-version" style="display:inline">
            <input type="hidden" name="path" value="{{$path}}">
            <input type="hidden" name="version" value="{{.}}">
            <button type="submit">Version {{.}}</button>
        </form>
        {{end}}
    </section>
    {{end}}
</main>
</body>
</html>`))
