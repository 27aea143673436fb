package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// Listener serves a handler on a loopback address until Stop.
type Listener struct {
	addr    string
	handler http.Handler
	logger  *slog.Logger

	mu      sync.Mutex
	server  *http.Server
	bound   net.Addr
	running bool
}

func NewListener(addr string, handler http.Handler, logger *slog.Logger) *Listener {
	return &Listener{addr: addr, handler: handler, logger: logger}
}

// Start binds the address and serves in the background. Non-loopback
// addresses are refused.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return nil
	}
	if err := requireLoopback(l.addr); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", l.addr, err)
	}

	l.server = &http.Server{
		Handler:           l.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Transcription can take as long as the STT plus LLM timeouts.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	l.bound = ln.Addr()

	go func() {
		l.logger.Info("command API listening", "addr", ln.Addr().String())
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("command API stopped", "error", err)
		}
	}()

	l.running = true
	return nil
}

// Addr is the bound address, useful when listening on port 0.
func (l *Listener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.bound == nil {
		return ""
	}
	return l.bound.String()
}

func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running {
		return nil
	}
	l.running = false

	if err := l.server.Shutdown(ctx); err != nil {
		l.logger.Warn("graceful shutdown failed, forcing close", "error", err)
		if err := l.server.Close(); err != nil {
			return fmt.Errorf("closing server: %w", err)
		}
	}
	return nil
}

func requireLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("listen address %q is not loopback", addr)
	}
	return nil
}
