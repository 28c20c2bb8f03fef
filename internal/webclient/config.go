package webclient

import "time"

type Client string

const (
	ClientNetHTTP  Client = "nethttp"
	ClientChromedp Client = "chromedp"
)

// Config selects and tunes a backend.
type Config struct {
	Client    Client        `yaml:"client"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`

	// chromedp only
	IdleAfter time.Duration `yaml:"idle_after"`
	Headless  bool          `yaml:"headless"`
}

func DefaultConfig() Config {
	return Config{
		Client:    ClientNetHTTP,
		Timeout:   30 * time.Second,
		UserAgent: "a11yscan/1.0 (+https://github.com/raysh454/a11yscan)",
		IdleAfter: 2 * time.Second,
		Headless:  true,
	}
}
