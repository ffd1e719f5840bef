// Command ltq is a thin CLI harness over ltqcli (spec §6, §9 Design
// Notes: "no module:symbol import-string resolution in Go, so the CLI
// links directly against user code"). A real deployment copies this
// pattern into its own binary, registering its own Workers and Apps
// instead of the demo ones below.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/tclesius/ltq"
	"github.com/tclesius/ltq/ltqcli"
)

func main() {
	brokerURL := os.Getenv("LTQ_DEMO_BROKER_URL")
	if brokerURL == "" {
		brokerURL = "redis://localhost:6379"
	}

	broker, err := ltq.BrokerFromURL(brokerURL)
	if err != nil {
		log.Fatalf("broker: %v", err)
	}

	emails := ltq.NewWorker("emails", broker, ltq.WorkerConfig{
		Concurrency:  20,
		RecoverAfter: 30 * time.Second,
	})
	if _, err := emails.Register("send_welcome", handleSendWelcome, ltq.TaskOptions{
		MaxTries: 5,
		MaxAge:   time.Hour,
		MaxRate:  "100/s",
	}); err != nil {
		log.Fatalf("register send_welcome: %v", err)
	}

	registry := ltqcli.NewRegistry()
	registry.RegisterWorker("emails", emails)

	os.Exit(ltqcli.Main(registry))
}

func handleSendWelcome(ctx context.Context, msg *ltq.Message) error {
	userID := ltq.Kwargs(msg.Kwargs).Int("user_id", 0)
	if len(msg.Args) > 0 {
		log.Printf("sending welcome email to %v (user_id=%d)", msg.Args[0], userID)
	}
	return nil
}
