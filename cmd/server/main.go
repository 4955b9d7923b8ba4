package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"collaborative-board/internal/bootstrap"
)

// 构建时通过 -ldflags 注入
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "board-server",
		Short:         "Real-time collaborative board server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	rootCmd.AddCommand(serveCmd(), migrateCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/WebSocket server and the background workers",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := bootstrap.NewLogger(cfg)

	// 初始化并运行 App
	app, err := bootstrap.NewApp(cmd.Context(), cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	if err := app.Start(); err != nil {
		app.Shutdown()
		return err
	}

	// 设置优雅关闭
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info("Shutdown signal received...")

	app.Shutdown()
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log := bootstrap.NewLogger(cfg)
			db, err := bootstrap.OpenDatabase(cfg, log)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
			log.Info("Migrations applied")
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Printf("board-server %s (commit %s, %s %s/%s)\n", version, commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
