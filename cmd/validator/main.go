package main

import (
	"flag"
	"log"
	"os"

	"github.com/tabwave/stepgate/internal/gateway/app"
)

func main() {
	configPath := flag.String("config", os.Getenv("STEPGATE_CONFIG"), "path to the configuration file")
	flag.Parse()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	application, err := app.New(cfg, app.ModeValidator)
	if err != nil {
		log.Fatalf("failed to initialize validator: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("validator error: %v", err)
	}
}
