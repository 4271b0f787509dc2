package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Brownie44l1/tumorscan/internal/config"
	"github.com/Brownie44l1/tumorscan/internal/handlers"
	"github.com/Brownie44l1/tumorscan/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tumor detector page",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.Must(cfg.Environment)
		defer log.Sync()

		log.Info("loading model", zap.String("dir", cfg.ModelDir))

		// The page cannot work without a model; this is the only fatal path.
		pipeline, m, err := loadPipeline(log)
		if err != nil {
			log.Fatal("failed to initialize model", zap.Error(err))
		}
		defer m.Close()

		handler := handlers.NewHandler(pipeline, log, cfg.MaxUploadBytes())
		server := &http.Server{
			Addr:              cfg.Addr(),
			Handler:           handlers.NewRouter(handler),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit
			log.Info("shutting down server")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := server.Shutdown(ctx); err != nil {
				log.Error("server forced to shutdown", zap.Error(err))
			}
		}()

		log.Info("server starting",
			zap.String("addr", cfg.Addr()),
			zap.String("resize_method", pipeline.ResizeMethod()),
			zap.Strings("classes", m.Metadata.Classes),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		log.Info("server stopped")
		return nil
	},
}

func init() {
	flags := serveCmd.Flags()
	flags.String("host", config.DefaultHost, "Host to listen on")
	flags.Int("port", config.DefaultPort, "Port to listen on")
	flags.Int64("max-upload-mb", config.DefaultMaxUploadMB, "Largest accepted upload in MiB")

	v.BindPFlag("host", flags.Lookup("host"))
	v.BindPFlag("port", flags.Lookup("port"))
	v.BindPFlag("max_upload_mb", flags.Lookup("max-upload-mb"))
}
