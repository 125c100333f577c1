package server

import (
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"rental_dashboard/internal/admin"
	"rental_dashboard/internal/limits"
	"rental_dashboard/internal/testutil"
)

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, body)
	})
}

func get(t *testing.T, client *http.Client, url string) string {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestStartServesPlainAndTLSListeners(t *testing.T) {
	pki := testutil.NewPKI(t)
	serverPair := pki.Server("admin")
	tlsConfig, err := admin.TLSConfig(serverPair.CertFile, serverPair.KeyFile, "")
	require.NoError(t, err)

	srv, err := Start([]Listener{
		{Name: "api", Addr: "127.0.0.1:0", Handler: okHandler("api")},
		{Name: "admin", Addr: "127.0.0.1:0", Handler: okHandler("admin"), TLS: tlsConfig},
		{Name: "metrics", Addr: "", Handler: okHandler("unused")},
	}, Options{})
	require.NoError(t, err)
	defer srv.Close()

	assert.Equal(t, "api", get(t, http.DefaultClient, "http://"+srv.Addr("api")+"/"))
	assert.Equal(t, "admin", get(t, pki.HTTPClient(nil), "https://"+srv.Addr("admin")+"/"))
	assert.Empty(t, srv.Addr("metrics"))
}

func TestStartRequiresAListener(t *testing.T) {
	_, err := Start([]Listener{{Name: "api", Addr: ""}}, Options{})
	assert.Error(t, err)

	_, err = Start([]Listener{{Name: "api", Addr: "127.0.0.1:0"}}, Options{})
	assert.Error(t, err)
}

func TestShutdownWaitsForInflightThenStops(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	slow := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		<-release
		_, _ = io.WriteString(w, "done")
	})

	var mu sync.Mutex
	var order []string
	record := func(name string) Stopper {
		return StopFunc(func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		})
	}

	tracker := NewInflightTracker()
	srv, err := Start([]Listener{{Name: "api", Addr: "127.0.0.1:0", Handler: slow}}, Options{
		Limits:   limits.Default(),
		Inflight: tracker,
		Shutdown: ShutdownConfig{GracefulTimeout: 2 * time.Second},
		Stoppers: []Stopper{record("sweeper"), record("redis")},
	})
	require.NoError(t, err)

	bodyCh := make(chan string, 1)
	go func() {
		resp, err := http.Get("http://" + srv.Addr("api") + "/")
		if err != nil {
			bodyCh <- err.Error()
			return
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		bodyCh <- string(data)
	}()
	<-started
	assert.Equal(t, int64(1), tracker.Count())

	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- srv.Shutdown() }()

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, order, "stoppers must wait for requests")
	mu.Unlock()

	close(release)
	require.NoError(t, <-shutdownDone)
	assert.Equal(t, "done", <-bodyCh)
	assert.Equal(t, []string{"sweeper", "redis"}, order)
	assert.Zero(t, tracker.Count())
	assert.NoError(t, srv.Shutdown())
}

func TestShutdownFromConfigDefaults(t *testing.T) {
	cfg := ApplyShutdownDefaults(ShutdownConfig{})
	assert.Equal(t, defaultGracefulTimeout, cfg.GracefulTimeout)
	assert.Equal(t, defaultForceClose, cfg.ForceClose)
	assert.Zero(t, cfg.Drain)
}

func TestInflightWaitHonoursContext(t *testing.T) {
	tracker := NewInflightTracker()
	require.NoError(t, tracker.Wait(context.Background()))

	tracker.Inc()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tracker.Wait(ctx), context.DeadlineExceeded)

	tracker.Dec()
	tracker.Dec()
	assert.Zero(t, tracker.Count())
	require.NoError(t, tracker.Wait(context.Background()))
}

func TestServeGRPCStops(t *testing.T) {
	grpcServer := grpc.NewServer()
	addr, stopper, err := ServeGRPC("127.0.0.1:0", grpcServer, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, stopper.Stop(ctx))
}
