// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package services

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

var _ suture.Service = (*HTTPServerService)(nil)

func waitForAddr(t *testing.T, svc *HTTPServerService) net.Addr {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if addr := svc.Addr(); addr != nil {
			return addr
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("server did not bind within 2s")
	return nil
}

func TestHTTPServerService_ServeAndShutdown(t *testing.T) {
	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "ok")
		}),
		ReadHeaderTimeout: time.Second,
	}
	svc := NewHTTPServerService(server, "127.0.0.1:0", time.Second, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	addr := waitForAddr(t, svc)
	resp, err := http.Get("http://" + addr.String() + "/")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("body = %q, want ok", body)
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}

func TestHTTPServerService_ListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	svc := NewHTTPServerService(&http.Server{ReadHeaderTimeout: time.Second}, ln.Addr().String(), time.Second, zerolog.Nop())
	if err := svc.Serve(context.Background()); err == nil {
		t.Fatal("Serve() on a bound port error = nil, want listen error")
	}
}

type failingServer struct{}

func (failingServer) Serve(l net.Listener) error {
	_ = l.Close()
	return errors.New("accept failed")
}

func (failingServer) Shutdown(context.Context) error { return nil }

func TestHTTPServerService_ServeFailure(t *testing.T) {
	svc := NewHTTPServerService(failingServer{}, "127.0.0.1:0", time.Second, zerolog.Nop())

	err := svc.Serve(context.Background())
	if err == nil || err.Error() != "http server failed: accept failed" {
		t.Errorf("Serve() error = %v, want wrapped accept failure", err)
	}
}

func TestHTTPServerService_Defaults(t *testing.T) {
	svc := NewHTTPServerService(failingServer{}, ":0", 0, zerolog.Nop())
	if svc.shutdownTimeout != 10*time.Second {
		t.Errorf("shutdownTimeout = %v, want 10s", svc.shutdownTimeout)
	}
	if svc.String() != "http-server" {
		t.Errorf("String() = %q, want http-server", svc.String())
	}
	if svc.Addr() != nil {
		t.Errorf("Addr() before Serve = %v, want nil", svc.Addr())
	}
}
