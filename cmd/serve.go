package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edulab/cibridge/pkg/ci"
	"github.com/edulab/cibridge/pkg/logstats"
	"github.com/edulab/cibridge/pkg/result"
	"github.com/edulab/cibridge/pkg/webhook"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server",
	Long: `Start the HTTP server that receives build completion notifications
from the configured CI backends, normalizes them and forwards the canonical
results.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	stats := logstats.NewMemoryStore()
	var submissionSeq atomic.Int64

	process := func(planKey string, build *result.BuildResult, logs []result.LogLine) {
		slog.Info("Build result",
			"plan", planKey,
			"successful", build.Successful,
			"tests", build.TestCaseCount,
			"passed", build.PassedTestCaseCount,
			"codeIssues", build.CodeIssueCount)
		// The statistics extractor only produces rows for logs that carry
		// the Java agent markers, other languages fall through.
		if err := logstats.ExtractAndStore(stats, submissionSeq.Add(1), ci.Java, logs); err != nil {
			slog.Warn("Could not store build log statistics", "error", err)
		}
	}

	localSink := func(planKey string, native *result.NativeBuild) {
		build := result.Normalize(native, result.Options{})
		if build == nil {
			return
		}
		process(planKey, build, native.Logs)
	}

	w, err := buildWiring(localSink)
	if err != nil {
		return err
	}

	sink := func(ctx context.Context, delivery webhook.Delivery) error {
		process(delivery.Backend, delivery.Build, delivery.Native.Logs)
		return nil
	}
	server := webhook.NewServer(w.registry, w.cfg.Server.Secret, nil, sink)

	httpSrv := &http.Server{
		Addr:              w.cfg.Server.Address,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting webhook server", "address", w.cfg.Server.Address, "backends", w.registry.Names())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		slog.Info("Shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
