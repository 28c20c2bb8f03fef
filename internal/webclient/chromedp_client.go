package webclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/raysh454/a11yscan/internal/logging"
)

// ChromeDPClient renders pages in headless Chrome so that client-side markup is
// present in the returned body. Only GET is supported.
type ChromeDPClient struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	idleAfter   time.Duration
	maxWait     time.Duration
	logger      logging.Logger
}

func NewChromeDPClient(cfg Config, logger logging.Logger) (*ChromeDPClient, error) {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	def := DefaultConfig()
	if cfg.IdleAfter <= 0 {
		cfg.IdleAfter = def.IdleAfter
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	l := logger.With(logging.Field{Key: "backend", Value: "chromedp"})
	l.Debug("created chromedp webclient", logging.Field{Key: "idle_after", Value: cfg.IdleAfter.String()})

	return &ChromeDPClient{
		allocCtx:    allocCtx,
		allocCancel: cancel,
		idleAfter:   cfg.IdleAfter,
		maxWait:     cfg.Timeout,
		logger:      l,
	}, nil
}

// networkIdle watches a tab and signals once no request has been in flight
// for idleAfter. The main document response is captured along the way.
type networkIdle struct {
	idle      chan struct{}
	active    int32
	idleAfter time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	once    sync.Once
	status  int
	headers http.Header
}

func watchNetwork(ctx context.Context, idleAfter time.Duration) *networkIdle {
	w := &networkIdle{idle: make(chan struct{}, 1), idleAfter: idleAfter}
	chromedp.ListenTarget(ctx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			atomic.AddInt32(&w.active, 1)
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			if atomic.AddInt32(&w.active, -1) <= 0 {
				w.arm()
			}
		case *network.EventResponseReceived:
			if e.Type == network.ResourceTypeDocument && e.Response != nil {
				w.recordDocument(e.Response)
			}
		}
	})
	return w
}

func (w *networkIdle) arm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.idleAfter, func() {
		if atomic.LoadInt32(&w.active) <= 0 {
			w.once.Do(func() { w.idle <- struct{}{} })
		}
	})
}

// recordDocument keeps the first document response, which is the navigation target.
func (w *networkIdle) recordDocument(resp *network.Response) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status != 0 {
		return
	}
	w.status = int(resp.Status)
	w.headers = make(http.Header, len(resp.Headers))
	for k, v := range resp.Headers {
		w.headers.Set(k, fmt.Sprint(v))
	}
}

func (w *networkIdle) document() (int, http.Header) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status, w.headers
}

func (w *networkIdle) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Do navigates a fresh tab to req.URL, waits for the network to settle and
// returns the rendered outer HTML.
func (cdc *ChromeDPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if m := strings.ToUpper(req.Method); m != "" && m != http.MethodGet {
		return nil, fmt.Errorf("chromedp backend does not support method %s", m)
	}

	tabCtx, cancelTab := chromedp.NewContext(cdc.allocCtx)
	defer cancelTab()

	// tie the tab to the caller's context
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	maxWait := cdc.maxWait
	if req.Timeout > 0 {
		maxWait = req.Timeout
	}
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, maxWait)
	defer cancelTimeout()

	watcher := watchNetwork(tabCtx, cdc.idleAfter)
	defer watcher.stop()

	if err := chromedp.Run(tabCtx, network.Enable(), chromedp.Navigate(req.URL)); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", req.URL, err)
	}

	select {
	case <-watcher.idle:
	case <-time.After(maxWait / 2):
		cdc.logger.Debug("network never settled, capturing anyway",
			logging.Field{Key: "url", Value: req.URL})
	case <-tabCtx.Done():
		return nil, fmt.Errorf("render %s: %w", req.URL, tabCtx.Err())
	}

	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("read rendered html: %w", err)
	}

	status, headers := watcher.document()
	if status == 0 {
		status = http.StatusOK
	}
	return &Response{
		Request:    req,
		Headers:    headers,
		Body:       []byte(html),
		StatusCode: status,
		FetchedAt:  time.Now(),
	}, nil
}

// Close shuts down the browser process.
func (cdc *ChromeDPClient) Close() error {
	cdc.allocCancel()
	return nil
}
