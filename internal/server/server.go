// Package server runs the dashboard's HTTP and gRPC listeners and tears
// them down in order.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"rental_dashboard/internal/limits"
	"rental_dashboard/internal/obs"
)

// Listener is one HTTP surface. A non-nil TLS config serves HTTPS.
type Listener struct {
	Name    string
	Addr    string
	Handler http.Handler
	TLS     *tls.Config
}

type Server struct {
	servers      []*runningServer
	limits       limits.Limits
	shutdown     ShutdownConfig
	inflight     *InflightTracker
	stoppers     []Stopper
	closeIdle    []func()
	logger       *log.Logger
	shutdownOnce sync.Once
	shutdownErr  error
}

type runningServer struct {
	name string
	srv  *http.Server
	ln   net.Listener
}

type Stopper interface {
	Stop(ctx context.Context) error
}

type StopFunc func(ctx context.Context) error

func (s StopFunc) Stop(ctx context.Context) error {
	return s(ctx)
}

type Options struct {
	Limits   limits.Limits
	Shutdown ShutdownConfig
	Inflight *InflightTracker
	// Stoppers run in order once every HTTP server has shut down.
	Stoppers  []Stopper
	CloseIdle []func()
	Logger    *log.Logger
}

// Start binds every listener with a non-empty address. Nothing is left bound
// when an error is returned.
func Start(listeners []Listener, options Options) (*Server, error) {
	limitConfig := options.Limits
	if limitConfig.MaxHeaderBytes == 0 {
		limitConfig = limits.Default()
	}
	s := &Server{
		limits:    limitConfig,
		shutdown:  ApplyShutdownDefaults(options.Shutdown),
		inflight:  options.Inflight,
		stoppers:  options.Stoppers,
		closeIdle: options.CloseIdle,
		logger:    obs.OrDiscard(options.Logger),
	}

	for _, listener := range listeners {
		if listener.Addr == "" {
			continue
		}
		if listener.Handler == nil {
			s.closeListeners()
			return nil, fmt.Errorf("%s: handler is nil", listener.Name)
		}
		ln, err := net.Listen("tcp", listener.Addr)
		if err != nil {
			s.closeListeners()
			return nil, fmt.Errorf("%s: %w", listener.Name, err)
		}
		srv := &http.Server{Handler: s.inflight.Track(limitConfig.LimitBody(listener.Handler))}
		limitConfig.Apply(srv)

		running := &runningServer{name: listener.Name, srv: srv, ln: ln}
		s.servers = append(s.servers, running)

		serveLn := ln
		if listener.TLS != nil {
			serveLn = tls.NewListener(ln, listener.TLS)
		}
		go s.serve(running, serveLn)
		s.logger.Info("listening", "listener", listener.Name, "addr", ln.Addr().String(), "tls", listener.TLS != nil)
	}

	if len(s.servers) == 0 {
		return nil, errors.New("no listeners configured")
	}
	return s, nil
}

func (s *Server) serve(running *runningServer, ln net.Listener) {
	err := running.srv.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
		s.logger.Error("server error", "listener", running.name, "err", err)
	}
}

// Addr returns the bound address of the named listener, or "".
func (s *Server) Addr(name string) string {
	if s == nil {
		return ""
	}
	for _, running := range s.servers {
		if running.name == name {
			return running.ln.Addr().String()
		}
	}
	return ""
}

func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	return s.Shutdown()
}

func (s *Server) Shutdown() error {
	if s == nil {
		return nil
	}
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdownSequence()
	})
	return s.shutdownErr
}

func (s *Server) shutdownSequence() error {
	s.closeListeners()

	if s.shutdown.Drain > 0 {
		time.Sleep(s.shutdown.Drain)
	}
	for _, closeIdle := range s.closeIdle {
		if closeIdle != nil {
			closeIdle()
		}
	}

	gracefulCtx, gracefulCancel := context.WithTimeout(context.Background(), s.shutdown.GracefulTimeout)
	defer gracefulCancel()
	if s.inflight != nil {
		_ = s.inflight.Wait(gracefulCtx)
	}
	var errs []error
	for _, running := range s.servers {
		if err := running.srv.Shutdown(gracefulCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, fmt.Errorf("%s: %w", running.name, err))
		}
	}
	if gracefulCtx.Err() != nil {
		if s.shutdown.ForceClose > 0 {
			time.Sleep(s.shutdown.ForceClose)
		}
		for _, running := range s.servers {
			_ = running.srv.Close()
		}
		errs = append(errs, gracefulCtx.Err())
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), s.shutdown.GracefulTimeout)
	defer stopCancel()
	for _, stopper := range s.stoppers {
		if stopper == nil {
			continue
		}
		if err := stopper.Stop(stopCtx); err != nil {
			s.logger.Warn("stopper failed", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Server) closeListeners() {
	for _, running := range s.servers {
		_ = running.ln.Close()
	}
}
