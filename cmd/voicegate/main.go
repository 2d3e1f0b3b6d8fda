package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vango-go/voicegate/internal/dotenv"
	"github.com/vango-go/voicegate/pkg/gateway/config"
	gatewayserver "github.com/vango-go/voicegate/pkg/gateway/server"
	"github.com/vango-go/voicegate/pkg/store"
)

type gatewayDeps struct {
	loadConfig   func() (config.Config, error)
	openStore    func(ctx context.Context, dsn string) (store.Store, error)
	newGateway   func(config.Config, *slog.Logger, gatewayserver.Deps) *gatewayserver.Server
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultGatewayDeps() gatewayDeps {
	return gatewayDeps{
		loadConfig: config.LoadFromEnv,
		openStore: func(ctx context.Context, dsn string) (store.Store, error) {
			if dsn == "" {
				return store.NewNoop(), nil
			}
			return store.NewPostgres(ctx, dsn)
		},
		newGateway: gatewayserver.New,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	// No global ReadTimeout: media stream websockets stay open for the whole
	// call and enforce their own deadlines.
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func runGateway(ctx context.Context, logger *slog.Logger, deps gatewayDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.openStore == nil {
		return errors.New("missing openStore dependency")
	}
	if deps.newGateway == nil {
		return errors.New("missing newGateway dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := deps.openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	gw := deps.newGateway(cfg, logger, gatewayserver.Deps{Store: st})
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway", "addr", cfg.Addr, "persistence", cfg.DatabaseURL != "")

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String(), "live_calls", gw.LiveCalls())
	}

	gw.SetDraining()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !gw.WaitLiveCalls(waitCtx) {
		canceled := gw.CancelLiveCalls()
		logger.Warn("canceled live calls that outlived the grace period", "count", canceled)
		cancelWaitCtx, cancelWaitCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelWaitCancel()
		gw.WaitLiveCalls(cancelWaitCtx)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps gatewayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "voicegate: %v\n", err)
		return 1
	}

	if err := runGateway(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "voicegate: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultGatewayDeps()))
}
