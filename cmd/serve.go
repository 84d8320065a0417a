package cmd

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/spf13/cobra"

	apphttp "github.com/SylvanaMarinePurnomo/PlateTrack/internal/http"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/queue"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	a, err := newApp(ctx, appOptions{models: true, journal: true, gate: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("error while closing collaborators")
		}
	}()

	var wg sync.WaitGroup
	if cfg.Queue.Enabled {
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return err
		}
		consumer := queue.NewConsumer(sqs.NewFromConfig(awsCfg), cfg.Queue.URL, cfg.Queue.WaitSeconds, a.service, isPermanent, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer.Run(ctx)
		}()
	}

	h := apphttp.NewHandler(a.service, a.auth, cfg, log)
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: apphttp.NewRouter(cfg, h, log),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Bool("models_loaded", a.service.Available()).
			Bool("auth", a.auth.Enabled()).
			Int("trusted_plates", a.store.Len()).
			Msg("platetrack listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	cancel()
	wg.Wait()
	return serveErr
}

func isPermanent(err error) bool {
	return errors.Is(err, service.ErrInvalidInput)
}
