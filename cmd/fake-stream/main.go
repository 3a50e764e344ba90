// ABOUTME: Fake chat server for manual testing of coven-chat
// ABOUTME: Usage: fake-stream [-addr 127.0.0.1:8080] [-delay 40ms] [-heartbeats 2] [-ids]

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-chat/internal/fakeserver"
	"github.com/2389/coven-chat/internal/logging"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "listen address")
	delay := flag.Duration("delay", 40*time.Millisecond, "pause between tokens")
	heartbeats := flag.Int("heartbeats", 1, "heartbeat frames before each reply")
	ids := flag.Bool("ids", false, "send id: lines on every frame")
	level := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	logger := slog.New(logging.NewHandler("color", logging.ParseLevel(*level), os.Stderr))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := fakeserver.Options{
		TokenDelay: *delay,
		Heartbeats: *heartbeats,
		FrameIDs:   *ids,
	}
	if err := run(ctx, *addr, opts, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, addr string, opts fakeserver.Options, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           fakeserver.New(opts, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	green := color.New(color.FgGreen)
	green.Printf("fake-stream listening on http://%s\n", ln.Addr())
	fmt.Println(`Say "search ..." for a tool call or "fail" for an error event.`)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
