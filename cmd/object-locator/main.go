package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	objectlocator "github.com/menta2k/object-locator"
	"github.com/menta2k/object-locator/internal/config"
	"github.com/menta2k/object-locator/pkg/client"
	"github.com/menta2k/object-locator/pkg/inference"
	"github.com/menta2k/object-locator/pkg/ollama"
	"github.com/menta2k/object-locator/pkg/storage"
)

func main() {
	var configPath, envFile string
	flag.StringVar(&configPath, "config", "configs/default.json", "path to the run configuration (JSON)")
	flag.StringVar(&envFile, "env", ".env", "optional dotenv file with process settings")
	flag.Parse()

	settings, err := config.LoadSettings(envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(os.Args[0]), err)
		os.Exit(1)
	}

	logger, err := newLogger(settings.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(os.Args[0]), err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger, settings, configPath); err != nil {
		logger.Error("run failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(logger *zap.Logger, settings config.Settings, configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	layout, err := storage.NewLayout(settings.ProjectRoot)
	if err != nil {
		return err
	}

	// Create appropriate client based on backend
	var backend client.Detector
	switch settings.Backend {
	case config.BackendOllama:
		backend, err = ollama.NewClient(settings.OllamaURL, settings.OllamaModel, ollama.WithLogger(logger.Named("ollama")))
		if err != nil {
			return err
		}
	default:
		backend, err = inference.NewClient(settings.InferenceURL)
		if err != nil {
			return err
		}
	}
	logger.Debug("backend ready", zap.String("backend", settings.Backend), zap.String("root", layout.Root))

	pipeline := objectlocator.New(storage.New(layout), backend,
		objectlocator.WithLogger(logger),
		objectlocator.WithAccelerators(settings.Accelerators),
	)
	positions, err := pipeline.Run(ctx, configPath)
	if err != nil {
		return err
	}

	fmt.Printf("Located objects in %d image(s)\n", len(positions))
	return nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
