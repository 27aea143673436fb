package infra

import (
	"strings"
	"time"
)

// ClientOptions are the knobs every provider adapter accepts.
type ClientOptions struct {
	BaseURL  string
	Timeout  time.Duration
	Observer ObserverFunc
}

type Option func(*ClientOptions)

func WithBaseURL(url string) Option {
	return func(o *ClientOptions) {
		if url != "" {
			o.BaseURL = strings.TrimRight(url, "/")
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(o *ClientOptions) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

// WithExchangeObserver reports every HTTP exchange the adapter makes.
func WithExchangeObserver(fn ObserverFunc) Option {
	return func(o *ClientOptions) {
		o.Observer = fn
	}
}

func ApplyOptions(defaults ClientOptions, opts []Option) ClientOptions {
	for _, opt := range opts {
		opt(&defaults)
	}
	return defaults
}
