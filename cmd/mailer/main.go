package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"aquasense/internal/config"
	sl "aquasense/internal/lib/logger"
	"aquasense/internal/mailer"
	"aquasense/internal/models"
	"aquasense/internal/rabbitmq"
)

func main() {
	cfg := config.MustLoad(configPath())

	log := setupLogger(cfg.Env)

	log.Info("starting mailer", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect to rabbitmq", sl.Err(err))
		os.Exit(1)
	}
	defer broker.Close()

	deliveries, err := broker.Consume()
	if err != nil {
		log.Error("failed to start consuming", sl.Err(err))
		os.Exit(1)
	}

	sender := mailer.New(cfg.Mailer)

	log.Info("mailer started", slog.String("queue", cfg.RabbitMQ.QueueName))

	for {
		select {
		case <-ctx.Done():
			log.Info("mailer stopped")
			return
		case delivery, ok := <-deliveries:
			if !ok {
				log.Error("delivery channel closed")
				return
			}

			var msg models.EmailMessage
			if err := json.Unmarshal(delivery.Body, &msg); err != nil {
				log.Error("failed to decode message, dropping", sl.Err(err))
				// malformed payload, redelivery cannot help
				_ = delivery.Reject(false)
				continue
			}

			if err := sender.SendActivation(msg); err != nil {
				log.Error("failed to send activation email",
					slog.String("to", msg.Email), sl.Err(err))
				_ = delivery.Nack(false, true)
				continue
			}

			log.Info("activation email sent", slog.String("to", msg.Email))
			_ = delivery.Ack(false)
		}
	}
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case "dev":
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case "prod":
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

func configPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}

	return "config/config.yaml"
}
