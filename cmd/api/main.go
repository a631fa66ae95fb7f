package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/septivank/energy-measurements-api/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	loadDotEnv()

	app := fx.New(
		fx.Provide(
			config.Load,
			newLogger,
			ProvideDBPool,
			ProvideRepository,
			ProvideValidator,
			ProvideFetcher,
			ProvideImportPublisher,
			ProvideImporter,
			ProvideQueryService,
			ProvideHandler,
		),
		fx.Invoke(startServer),
	)

	// Graceful shutdown on interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tempLogger, _ := newLogger(&config.Config{ServiceName: "energy-measurements-api"})
	tempLogger.Info("starting application...", zap.String("timeout", "30s"))

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	if err := app.Start(startCtx); err != nil {
		if startCtx.Err() == context.DeadlineExceeded {
			tempLogger.Error("APPLICATION START TIMEOUT: failed to start within 30 seconds. This usually means the database (or RabbitMQ, when configured) is not accessible. Check the error messages above for the specific connection failure.")
		}
		panic(err)
	}

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		fmt.Println("error stopping app:", err)
	}
}

// loadDotEnv looks for a .env file in the working directory and its parents.
// Nothing is required to be found: pods and containers inject real env vars.
func loadDotEnv() {
	envPaths := []string{".env", "../../.env"}

	if workDir, err := os.Getwd(); err == nil {
		parentDir := filepath.Dir(workDir)
		envPaths = append(envPaths,
			filepath.Join(parentDir, ".env"),
			filepath.Join(filepath.Dir(parentDir), ".env"),
		)
	}

	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err == nil {
				absPath, _ := filepath.Abs(envPath)
				fmt.Printf("Loaded environment from: %s\n", absPath)
				return
			}
		}
	}

	fmt.Println("No .env file found, using system environment variables (OK for pods/containers)")
}
