package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"redline/internal/job"
	"redline/internal/llm"
	"redline/internal/pipeline"
	"redline/internal/playbook"
	"redline/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the redline HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		client, err := llm.NewClient(ctx, cfg.LLMOptions())
		if err != nil {
			return err
		}
		pipe := pipeline.New(client, logger, cfg.PipelineOptions())

		var library *playbook.Library
		if cfg.Playbook.Dir != "" {
			library = playbook.NewLibrary()
			pbs, err := playbook.LoadDir(afero.NewOsFs(), cfg.Playbook.Dir)
			if err != nil {
				return err
			}
			library.Replace(pbs)
			logger.Info("playbooks loaded",
				zap.String("dir", cfg.Playbook.Dir),
				zap.Int("playbooks", len(pbs)))
			if cfg.Playbook.Watch {
				go func() {
					if err := playbook.Watch(ctx, library, cfg.Playbook.Dir, logger); err != nil && !errors.Is(err, context.Canceled) {
						logger.Warn("playbook watcher stopped", zap.Error(err))
					}
				}()
			}
		}

		srv := &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: server.New(pipe, job.NewStore(), library, logger),
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("listening", zap.String("addr", cfg.Server.Addr))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	},
}
