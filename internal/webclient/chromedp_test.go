package webclient_test

import (
	"context"
	"strings"
	"testing"

	"github.com/raysh454/a11yscan/internal/logging"
	"github.com/raysh454/a11yscan/internal/webclient"
)

// Construction only starts an allocator; the browser is launched lazily on
// the first navigation, so these tests run without Chrome installed.

func TestNewChromeDPClient_Construct(t *testing.T) {
	t.Parallel()
	client, err := webclient.NewChromeDPClient(webclient.DefaultConfig(), logging.NopLogger{})
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestChromeDPClient_DoRejectsNonGET(t *testing.T) {
	t.Parallel()
	client, err := webclient.NewChromeDPClient(webclient.DefaultConfig(), logging.NopLogger{})
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}
	defer client.Close()

	_, err = client.Do(context.Background(), &webclient.Request{Method: "POST", URL: "http://example.com"})
	if err == nil {
		t.Fatal("expected error for POST request")
	}
	if !strings.Contains(err.Error(), "does not support") {
		t.Errorf("unexpected error: %v", err)
	}
}
