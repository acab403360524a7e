package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/carehub/clinic-api/internal/infra/app"
	"github.com/carehub/clinic-api/internal/infra/config"
)

// envFileVar points at an alternative dotenv file, e.g. per-clinic deployments.
const envFileVar = "CLINIC_ENV_FILE"

func main() {
	if path := os.Getenv(envFileVar); path != "" {
		if err := godotenv.Load(path); err != nil {
			log.Fatalf("failed to load %s: %v", path, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init clinic api: %v", err)
	}

	if err := application.Run(ctx); err != nil {
		log.Printf("clinic api stopped: %v", err)
		os.Exit(1)
	}
}
