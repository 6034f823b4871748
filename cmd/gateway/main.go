package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/Altanb21/TideBitEx-sub000/internal/bootstrap"
	"github.com/Altanb21/TideBitEx-sub000/pkg/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to bootstrap gateway: %v", err)
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("Gateway stopped: %v", err)
	}
}
