package webclient_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/raysh454/a11yscan/internal/logging"
	"github.com/raysh454/a11yscan/internal/webclient"
)

func TestNewWebClient_DefaultBackend(t *testing.T) {
	t.Parallel()
	client, err := webclient.NewWebClient(webclient.Config{}, logging.NopLogger{})
	if err != nil {
		t.Fatalf("NewWebClient: %v", err)
	}
	defer client.Close()
	if _, ok := client.(*webclient.NetHTTPClient); !ok {
		t.Errorf("default backend = %T, want *NetHTTPClient", client)
	}
}

func TestNewWebClient_UnknownBackend(t *testing.T) {
	t.Parallel()
	client, err := webclient.NewWebClient(webclient.Config{Client: "carrier-pigeon"}, nil)
	if !errors.Is(err, webclient.ErrUnknownBackend) {
		t.Fatalf("err = %v, want ErrUnknownBackend", err)
	}
	if client != nil {
		t.Fatal("expected nil client for unknown backend")
	}
}

func TestListBackends_IncludesDefaults(t *testing.T) {
	t.Parallel()
	names := webclient.ListBackends()
	for _, want := range []webclient.Client{webclient.ClientChromedp, webclient.ClientNetHTTP} {
		if !slices.Contains(names, want) {
			t.Errorf("backend %q not registered: %v", want, names)
		}
	}
}

type stubClient struct{}

func (stubClient) Do(context.Context, *webclient.Request) (*webclient.Response, error) {
	return nil, errors.New("stub")
}
func (stubClient) Close() error { return nil }

func TestRegisterBackend_CustomBackend(t *testing.T) {
	t.Parallel()
	webclient.RegisterBackend(" Stub-Test ", func(webclient.Config, logging.Logger) (webclient.WebClient, error) {
		return stubClient{}, nil
	})
	client, err := webclient.NewWebClient(webclient.Config{Client: "stub-test"}, nil)
	if err != nil {
		t.Fatalf("NewWebClient: %v", err)
	}
	if _, ok := client.(stubClient); !ok {
		t.Errorf("got %T, want stubClient", client)
	}
}
