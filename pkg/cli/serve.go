package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/zettel-lab/kasten/pkg/cli/config"
	httpctrl "github.com/zettel-lab/kasten/pkg/controller/http"
	"github.com/zettel-lab/kasten/pkg/service/capture"
	"github.com/zettel-lab/kasten/pkg/service/enrich"
	"github.com/zettel-lab/kasten/pkg/service/health"
	"github.com/zettel-lab/kasten/pkg/service/search"
	"github.com/zettel-lab/kasten/pkg/usecase"
	"github.com/zettel-lab/kasten/pkg/utils/logging"
)

func cmdServe() *cli.Command {
	var addr string
	var healthInterval time.Duration
	var repoCfg config.Repository
	var embedCfg config.Embedding
	var captureCfg config.Capture
	var tuningCfg config.Tuning

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("KASTEN_ADDR"),
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "health-interval",
			Usage:       "Interval between knowledge-graph health scans",
			Value:       time.Hour,
			Sources:     cli.EnvVars("KASTEN_HEALTH_INTERVAL"),
			Destination: &healthInterval,
		},
	}
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, embedCfg.Flags()...)
	flags = append(flags, captureCfg.Flags()...)
	flags = append(flags, tuningCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the HTTP server with the enrichment pipeline",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := tuningCfg.Load(); err != nil {
				return goerr.Wrap(err, "failed to load tuning file")
			}

			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			provider, err := embedCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to configure embedding provider")
			}
			logging.Default().Info("Embedding provider configured", "model", provider.Model())

			queue := enrich.NewQueue()
			defer queue.Close()

			searchSvc := search.New(repo, provider,
				search.WithRRFK(tuningCfg.Search.RRFK),
				search.WithMinRelevance(orDefault(tuningCfg.Search.MinRelevance, search.DefaultMinRelevance)),
			)

			healthOpts := []health.Option{
				health.WithSplitThreshold(tuningCfg.Health.SplitThreshold),
			}
			if tuningCfg.Health.SimilarityThreshold > 0 {
				healthOpts = append(healthOpts, health.WithSimilarityThreshold(tuningCfg.Health.SimilarityThreshold))
			}
			if tuningCfg.Health.DuplicateThreshold > 0 {
				healthOpts = append(healthOpts, health.WithDuplicateThreshold(tuningCfg.Health.DuplicateThreshold))
			}
			healthEngine := health.New(repo, healthOpts...)

			uc := usecase.New(repo,
				usecase.WithQueue(queue),
				usecase.WithSearchService(searchSvc),
				usecase.WithHealthEngine(healthEngine),
			)

			worker := enrich.NewWorker(repo, provider, queue,
				enrich.WithPoolSize(tuningCfg.Worker.PoolSize),
				enrich.WithMaxRetries(tuningCfg.Worker.MaxRetries),
				enrich.WithBackoff(tuningCfg.Worker.BackoffBase, tuningCfg.Worker.BackoffCap),
				enrich.WithProviderTimeout(tuningCfg.Worker.ProviderTimeout),
			)
			if err := worker.Start(ctx); err != nil {
				return goerr.Wrap(err, "failed to start embedding worker")
			}

			healthEngine.Start(ctx, healthInterval)

			httpOpts := []httpctrl.Options{
				httpctrl.WithWorkerStats(worker.Stats),
			}

			var poller *capture.Poller
			source, err := captureCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to configure capture source")
			}
			if source != nil {
				poller, err = capture.NewPoller(source, uc, captureCfg.Interval(),
					capture.WithFetchLimit(tuningCfg.Capture.FetchLimit),
					capture.WithDedupeWindow(tuningCfg.Capture.DedupeWindow),
				)
				if err != nil {
					return goerr.Wrap(err, "failed to create capture poller")
				}
				if err := poller.Start(ctx); err != nil {
					return goerr.Wrap(err, "failed to start capture poller")
				}
				httpOpts = append(httpOpts, httpctrl.WithPollerStatus(func() (string, time.Time) {
					return source.Name(), poller.LastPollUTC()
				}))
				logging.Default().Info("Capture poller enabled", "source", source.Name())
			} else {
				logging.Default().Info("Capture source not configured, ingestion disabled")
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(uc, httpOpts...),
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				if poller != nil {
					poller.Stop()
				}
				healthEngine.Stop()
				worker.Stop()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}

func orDefault(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}
