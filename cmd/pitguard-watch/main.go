package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/minewatch/pitguard/internal/client"
	"github.com/minewatch/pitguard/internal/logging"
	"github.com/minewatch/pitguard/internal/models"
)

// pitguard-watch tails the live event stream and prints risk changes and
// alerts to the terminal. Handy for checking a site from a shell.
func main() {
	_ = godotenv.Load()

	baseURL := flag.String("url", envOr("PITGUARD_URL", "http://localhost:8080"), "base URL of the pitguard server")
	level := flag.String("log-level", envOr("LOG_LEVEL", "warn"), "log level")
	flag.Parse()

	logging.Setup(*level)

	sub := client.NewSubscriber(client.Options{BaseURL: *baseURL}, slog.Default())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("watching %s\n", *baseURL)
	err := sub.Run(ctx, printEvent)
	if err != nil && ctx.Err() == nil {
		logging.Fatalf("stream error: %v", err)
	}
}

func printEvent(e models.StreamEvent) {
	switch v := e.(type) {
	case models.PredictionEvent:
		for _, z := range v.Zones {
			if z.Risk != models.RiskLow {
				fmt.Printf("[%s] %-6s %s  p=%.2f\n", v.Timestamp.Format("15:04:05"), z.Risk, z.ID, z.Probability)
			}
		}
	case models.AlertEvent:
		fmt.Printf("[%s] ALERT %s  %s\n", v.Timestamp.Format("15:04:05"), v.ZoneID, v.Message)
	case models.OccupancyEvent:
		total := 0
		for _, o := range v {
			total += o.Count
		}
		fmt.Printf("occupancy: %d workers tracked across %d zones\n", total, len(v))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
