package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/submerge-go/internal/config"
	"github.com/John-Robertt/submerge-go/internal/httpapi"
	"github.com/John-Robertt/submerge-go/internal/pipeline"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultConvertTimeout    = 60 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the aggregation modes over HTTP",
		Long: `Start the HTTP API:

  GET  /sub?mode=aggregate|rename|convert&sub=...
  POST /api/convert
  GET  /healthz
  GET  /metrics`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	f := cmd.Flags()
	f.String(config.KeyListen, config.DefaultListen, "HTTP listen address")
	f.Duration(config.KeyTimeout, 15*time.Second, "timeout of each upstream request")
	f.Int(config.KeyRetries, 0, "extra attempts for transient upstream failures")
	f.Int(config.KeyConcurrency, pipeline.DefaultConcurrency, "upstream requests in flight per aggregate request")
	f.Duration("read-header-timeout", defaultReadHeaderTimeout, "HTTP ReadHeaderTimeout")
	f.Duration("convert-timeout", defaultConvertTimeout, "upper bound of one request, upstream fetches included")
	f.Duration("shutdown-timeout", defaultShutdownTimeout, "graceful shutdown wait after a signal")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}
	cfg, err := config.LoadServe(v)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	readHeaderTimeout, _ := f.GetDuration("read-header-timeout")
	convertTimeout, _ := f.GetDuration("convert-timeout")
	shutdownTimeout, _ := f.GetDuration("shutdown-timeout")

	log := logrus.StandardLogger()
	srv := &http.Server{
		Addr: cfg.Listen,
		Handler: httpapi.NewHandlerWithOptions(httpapi.Options{
			ConvertTimeout: convertTimeout,
			Pipeline:       cfg.Pipeline,
			Logger:         log,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	log.Infof("listening on http://%s", cfg.Listen)

	ctx := cmd.Context()
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")

		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			log.WithError(err).Warn("graceful shutdown failed")
			_ = srv.Close()
		}

		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
