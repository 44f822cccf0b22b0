// Package main provides the entry point for the live conversation application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"

	"github.com/linguakid/linguakid/internal/app"
	"github.com/linguakid/linguakid/internal/config"
	"github.com/linguakid/linguakid/internal/conversation"
	"github.com/linguakid/linguakid/internal/infrastructure"
	pkginfra "github.com/linguakid/linguakid/pkg/infrastructure"
)

func main() {
	// Default config path, override with the first argument.
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	application := app.New(
		// Core modules
		config.Module,
		infrastructure.LoggerModule,

		// Application modules
		conversation.Module,

		// Supply the config path
		fx.Supply(configPath),

		// Configure Fx to use our Zap logger for its own internal logging
		fx.WithLogger(pkginfra.NewFxLoggerAdapter),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go application.Run()

	sig := <-sigCh
	fmt.Printf("Received signal: %s, initiating shutdown.\n", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err := application.Stop(shutdownCtx)
	cancel()

	if err != nil {
		fmt.Printf("Error during shutdown: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Application has shut down gracefully.")
}
