package server

import (
	"time"

	"github.com/raysh454/a11yscan/internal/logging"
)

type Config struct {
	// ListenAddr is the HTTP listen address, e.g. ":8080".
	ListenAddr string

	// AllowedOrigins feeds Access-Control-Allow-Origin and the websocket
	// origin check. "*" allows any origin.
	AllowedOrigins []string

	ReadHeaderTimeout time.Duration

	Logger logging.Logger
}
