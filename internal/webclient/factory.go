package webclient

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/raysh454/a11yscan/internal/logging"
)

// ErrUnknownBackend is returned by NewWebClient for an unregistered Client.
var ErrUnknownBackend = errors.New("unknown webclient backend")

// BackendConstructor builds a WebClient for the given config.
type BackendConstructor func(cfg Config, logger logging.Logger) (WebClient, error)

var backends = struct {
	sync.RWMutex
	ctors map[Client]BackendConstructor
}{ctors: map[Client]BackendConstructor{}}

func init() {
	RegisterDefaultBackends()
}

func (c Client) normalize() Client {
	return Client(strings.ToLower(strings.TrimSpace(string(c))))
}

// RegisterBackend adds or replaces the constructor for c. Names are
// case-insensitive.
func RegisterBackend(c Client, ctor BackendConstructor) {
	c = c.normalize()
	if c == "" || ctor == nil {
		return
	}
	backends.Lock()
	backends.ctors[c] = ctor
	backends.Unlock()
}

// RegisterDefaultBackends registers nethttp and chromedp. It runs from init;
// calling it again restores the defaults after a test override.
func RegisterDefaultBackends() {
	RegisterBackend(ClientNetHTTP, func(cfg Config, logger logging.Logger) (WebClient, error) {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultConfig().Timeout
		}
		return NewNetHTTPClient(cfg, logger, &http.Client{Timeout: timeout})
	})
	RegisterBackend(ClientChromedp, func(cfg Config, logger logging.Logger) (WebClient, error) {
		return NewChromeDPClient(cfg, logger)
	})
}

// NewWebClient constructs the backend named by cfg.Client, nethttp when unset.
func NewWebClient(cfg Config, logger logging.Logger) (WebClient, error) {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	name := cfg.Client.normalize()
	if name == "" {
		name = ClientNetHTTP
	}

	backends.RLock()
	ctor, ok := backends.ctors[name]
	backends.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (have %v)", ErrUnknownBackend, name, ListBackends())
	}

	wc, err := ctor(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("constructing %s client: %w", name, err)
	}
	if wc == nil {
		return nil, fmt.Errorf("constructing %s client: constructor returned nil", name)
	}
	logger.Debug("webclient ready", logging.Field{Key: "backend", Value: string(name)})
	return wc, nil
}

// ListBackends returns the registered backend names, sorted.
func ListBackends() []Client {
	backends.RLock()
	defer backends.RUnlock()
	out := make([]Client, 0, len(backends.ctors))
	for c := range backends.ctors {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}
