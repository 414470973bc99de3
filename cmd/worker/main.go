package main

import (
	"log"
	"log/slog"
	"oracle-broker/cmd"
	"oracle-broker/internal/messaging"
	"oracle-broker/pkg/models"

	"github.com/caarlos0/env/v11"
)

type WorkerConfig struct {
	RabbitMQURL string `env:"RABBITMQ_URL,notEmpty,required"`
}

// The worker follows the broker's event stream and writes it to the log. It
// is the integration point for downstream consumers that track submissions
// and resolutions off-band.
func main() {
	log.Println("Starting Event Worker...")

	cmd.LoadEnvFile()

	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	receiver, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer receiver.Close()

	worker := messaging.NewEventWorker(receiver)
	worker.OnSubmission = func(event models.SubmissionEvent) {
		slog.Info("request submitted", "request_id", event.RequestId, "sender", event.Sender, "model_id", event.ModelId)
	}
	worker.OnResolution = func(event models.ResolutionEvent) {
		slog.Info("request resolved", "request_id", event.RequestId, "model_id", event.ModelId, "output_bytes", len(event.Output))
	}

	log.Println("Worker started. Waiting for events. Press Ctrl+C to exit.")
	worker.Run()

	log.Println("Worker process stopped.")
}
