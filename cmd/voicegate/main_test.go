package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/voicegate/pkg/gateway/config"
	gatewayserver "github.com/vango-go/voicegate/pkg/gateway/server"
	"github.com/vango-go/voicegate/pkg/store"
)

func TestRunMain_ReturnsNonZeroWhenConfigLoadFails(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	exitCode := runMain(context.Background(), &stderr, gatewayDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{}, errors.New("boom")
		},
		openStore: func(context.Context, string) (store.Store, error) {
			t.Fatal("openStore should not be called when config load fails")
			return nil, nil
		},
		newGateway: func(config.Config, *slog.Logger, gatewayserver.Deps) *gatewayserver.Server {
			t.Fatal("newGateway should not be called when config load fails")
			return nil
		},
		signalNotify: func(chan<- os.Signal, ...os.Signal) {},
		signalStop:   func(chan<- os.Signal) {},
	})

	if exitCode != 1 {
		t.Fatalf("exitCode=%d, want 1", exitCode)
	}
	if stderr.String() == "" {
		t.Fatal("expected stderr output for startup error")
	}
}

func TestRunGateway_ReturnsErrorWhenStoreOpenFails(t *testing.T) {
	t.Parallel()

	err := runGateway(context.Background(), nil, gatewayDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{DatabaseURL: "postgres://bad"}, nil
		},
		openStore: func(context.Context, string) (store.Store, error) {
			return nil, errors.New("connect refused")
		},
		newGateway: func(config.Config, *slog.Logger, gatewayserver.Deps) *gatewayserver.Server {
			t.Fatal("newGateway should not be called when store open fails")
			return nil
		},
		signalNotify: func(chan<- os.Signal, ...os.Signal) {},
		signalStop:   func(chan<- os.Signal) {},
	})

	if err == nil || !strings.Contains(err.Error(), "open store") {
		t.Fatalf("err = %v, want store open error", err)
	}
}

func TestBuildHTTPServer_UsesConfiguredAddress(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Addr:              "127.0.0.1:9999",
		ReadHeaderTimeout: 2 * time.Second,
	}

	srv := buildHTTPServer(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	if srv.Addr != cfg.Addr {
		t.Fatalf("Addr=%q, want %q", srv.Addr, cfg.Addr)
	}
	if srv.ReadHeaderTimeout != cfg.ReadHeaderTimeout {
		t.Fatalf("ReadHeaderTimeout=%v, want %v", srv.ReadHeaderTimeout, cfg.ReadHeaderTimeout)
	}
	if srv.ReadTimeout != 0 {
		t.Fatalf("ReadTimeout=%v, want 0 for long-lived media streams", srv.ReadTimeout)
	}
}

func TestDefaultGatewayDeps_NoopStoreWithoutDatabaseURL(t *testing.T) {
	t.Parallel()

	deps := defaultGatewayDeps()
	st, err := deps.openStore(context.Background(), "")
	if err != nil {
		t.Fatalf("openStore() error = %v", err)
	}
	defer st.Close()
	if _, ok := st.(*store.Noop); !ok {
		t.Fatalf("store = %T, want *store.Noop", st)
	}
}
