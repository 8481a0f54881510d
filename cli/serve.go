package cli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/tracefold/app-server/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the full ingest stack: HTTP API, gRPC OTLP services, and the consumer fleet",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		spawnWorkers(ctx, a)

		server := &api.Server{
			DB:             a.database,
			Cache:          a.cache,
			Queue:          a.queue,
			CH:             a.chSvc,
			CHReader:       a.chDirect,
			Storage:        a.storage,
			PubSub:         a.pubsub,
			QueryEngine:    a.query,
			Evaluations:    a.evals,
			Tracker:        a.tracker,
			Expected:       a.expected,
			Features:       a.features,
			Config:         a.server,
			Logger:         a.logger,
			PayloadBucket:  a.bucket,
			QueueConnected: a.queueConnected,
		}

		e := server.NewEcho()

		grpcServer := grpc.NewServer()
		(&api.GRPCServices{
			DB:     a.database,
			Cache:  a.cache,
			Queue:  a.queue,
			Logger: a.logger,
		}).Register(grpcServer)

		grpcListener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", a.server.Host, a.server.GRPCPort))
		if err != nil {
			return fmt.Errorf("failed to listen on gRPC port: %w", err)
		}

		errs := make(chan error, 2)
		go func() {
			a.logger.WithField("port", a.server.Port).Info("starting HTTP server")
			addr := fmt.Sprintf("%s:%d", a.server.Host, a.server.Port)
			if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
				errs <- err
			}
		}()
		go func() {
			a.logger.WithField("port", a.server.GRPCPort).Info("starting gRPC server")
			if err := grpcServer.Serve(grpcListener); err != nil {
				errs <- err
			}
		}()

		select {
		case <-ctx.Done():
			a.logger.Info("shutting down")
		case err := <-errs:
			a.logger.WithError(err).Error("server failed")
			cancel()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.server.ShutdownTimeout)
		defer shutdownCancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			a.logger.WithError(err).Warn("HTTP shutdown incomplete")
		}
		grpcServer.GracefulStop()

		// Give in-flight worker batches a moment to settle their ackers.
		time.Sleep(100 * time.Millisecond)
		return nil
	},
}
