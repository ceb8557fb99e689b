// Command judgehostd is the process entrypoint: it parses environment
// configuration, builds the Server Orchestrator, and runs it until the
// stream transport hits end-of-stream or a termination signal arrives in
// HTTP mode. The CLI wrapper is explicitly out of core scope beyond this
// exit-on-EOS contract, so it stays a thin main with no flag library.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"goa.design/clue/log"

	"github.com/judgehost/judgehost/internal/config"
	"github.com/judgehost/judgehost/internal/server"
	"github.com/judgehost/judgehost/internal/service"
	"github.com/judgehost/judgehost/internal/telemetry"
)

func main() {
	cfg := config.FromEnv()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	// In stream mode stdout carries JSON-RPC envelopes, so all logging
	// goes to stderr.
	opts := []log.LogOption{log.WithFormat(format)}
	if cfg.Transport == config.TransportStream {
		opts = append(opts, log.WithOutput(os.Stderr))
	}
	ctx := log.Context(context.Background(), opts...)
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := telemetry.NewClueLogger()

	orch := server.New(cfg, logger, server.WithExitFunc(os.Exit))

	errc := make(chan error, 1)
	go func() {
		errc <- orch.Start(ctx, os.Stdin, os.Stdout, service.Provided{})
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownBudget)
		defer cancel()
		if err := orch.Stop(shutdownCtx); err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "shutdown failed"})
			os.Exit(1)
		}
	case err := <-errc:
		if err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "server exited with error"})
			os.Exit(1)
		}
	}
}
