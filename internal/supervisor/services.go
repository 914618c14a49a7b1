// Eventledger - Durable Pub/Sub Event Ledger with Coalesced Writes
// Copyright 2026 The Eventledger Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventledger/eventledger

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/eventledger/eventledger/internal/logging"
)

// StartStopper is the lifecycle shape shared by the flush scheduler and the
// cleaner: a non-blocking Start and an idempotent Stop.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop() error
}

// LifecycleService adapts a StartStopper to suture's blocking Serve pattern.
type LifecycleService struct {
	inner StartStopper
	name  string
}

// NewLifecycleService wraps inner under the given name.
func NewLifecycleService(inner StartStopper, name string) *LifecycleService {
	return &LifecycleService{inner: inner, name: name}
}

// Serve starts the component, blocks until the context is canceled and then
// stops it. A Stop error is logged rather than returned: the context is
// already canceled, so suture would otherwise treat the service as crashed
// and try to restart it mid-shutdown.
func (s *LifecycleService) Serve(ctx context.Context) error {
	if err := s.inner.Start(ctx); err != nil {
		return fmt.Errorf("%s start: %w", s.name, err)
	}

	<-ctx.Done()

	if err := s.inner.Stop(); err != nil {
		logging.Error().Err(err).Str("service", s.name).Msg("Service stop reported error")
	}
	return ctx.Err()
}

func (s *LifecycleService) String() string {
	return s.name
}

// ContextRunner is anything that runs until its context is canceled.
// Satisfied by the WebSocket hub.
type ContextRunner interface {
	RunWithContext(ctx context.Context) error
}

// RunnerService adapts a ContextRunner to suture.
type RunnerService struct {
	inner ContextRunner
	name  string
}

// NewRunnerService wraps inner under the given name.
func NewRunnerService(inner ContextRunner, name string) *RunnerService {
	return &RunnerService{inner: inner, name: name}
}

// Serve implements suture.Service.
func (s *RunnerService) Serve(ctx context.Context) error {
	return s.inner.RunWithContext(ctx)
}

func (s *RunnerService) String() string {
	return s.name
}

// HTTPServer matches *http.Server's lifecycle methods.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService runs an HTTP server under supervision with graceful shutdown.
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPService wraps server. shutdownTimeout bounds the drain of active
// connections on shutdown.
func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service. http.ErrServerClosed is the expected
// result of a graceful shutdown and is not treated as a failure.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (s *HTTPService) String() string {
	return "http-server"
}
