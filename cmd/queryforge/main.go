package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"queryforge/internal/api"
	"queryforge/internal/config"
	"queryforge/internal/logging"
	"queryforge/internal/orchestrator"
)

func main() {
	root := &cobra.Command{
		Use:   "queryforge",
		Short: "Adversarial plan/verify/execute engine for answering queries with tools",
	}
	root.AddCommand(serveCmd(), askCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logging.New(cfg.Debug)
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			orch := orchestrator.New(ctx, cfg, log)
			srv := &http.Server{
				Addr:    ":" + cfg.Port,
				Handler: api.NewServer(orch, log).Handler(),
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			log.Info("listening", zap.String("addr", srv.Addr))

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				log.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}
}

func askCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "ask [query]",
		Short: "Answer one query from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logging.New(cfg.Debug)
			defer log.Sync()

			fileContext := ""
			if filePath != "" {
				data, err := os.ReadFile(filePath)
				if err != nil {
					return fmt.Errorf("read context file: %w", err)
				}
				fileContext = string(data)
			}

			orch := orchestrator.New(cmd.Context(), cfg, log)
			query := ""
			for i, a := range args {
				if i > 0 {
					query += " "
				}
				query += a
			}
			session := orch.ProcessQuery(cmd.Context(), query, fileContext)
			fmt.Println(session.FinalResponse)
			if session.Metadata.Disclaimer != "" {
				fmt.Fprintln(os.Stderr, session.Metadata.Disclaimer)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "path to a text file used as extra context")
	return cmd
}
