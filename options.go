package dtlview

import (
	"net/http"

	"github.com/rs/zerolog"
)

const defaultRegisterConcurrency = 4

type options struct {
	client              *http.Client
	logger              zerolog.Logger
	registerConcurrency int
}

// Option configures a Session or Pipeline.
type Option func(*options)

// WithHTTPClient sets the client used to fetch manifests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.client = c
	}
}

// WithLogger sets the logger for session and pipeline events.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRegisterConcurrency bounds how many arrays are registered with the
// engine at once. Values below 1 register one at a time.
func WithRegisterConcurrency(n int) Option {
	return func(o *options) {
		o.registerConcurrency = max(n, 1)
	}
}

func newOptions(opts []Option) options {
	o := options{
		client:              http.DefaultClient,
		logger:              zerolog.Nop(),
		registerConcurrency: defaultRegisterConcurrency,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
