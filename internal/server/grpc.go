package server

import (
	"context"
	"errors"
	"net"

	"github.com/charmbracelet/log"
	"google.golang.org/grpc"

	"rental_dashboard/internal/obs"
)

// ServeGRPC binds addr and serves srv in the background. The returned
// stopper drains with GracefulStop and falls back to Stop when ctx expires.
func ServeGRPC(addr string, srv *grpc.Server, logger *log.Logger) (string, Stopper, error) {
	if srv == nil {
		return "", nil, errors.New("grpc server is nil")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, err
	}
	logger = obs.OrDiscard(logger)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("grpc server error", "err", err)
		}
	}()
	logger.Info("listening", "listener", "admin-grpc", "addr", ln.Addr().String())

	stop := StopFunc(func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			srv.Stop()
			return ctx.Err()
		}
	})
	return ln.Addr().String(), stop, nil
}
