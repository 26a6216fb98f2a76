package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/waflowhq/waflow-backend/internal/config"
	"github.com/waflowhq/waflow-backend/internal/db"
	"github.com/waflowhq/waflow-backend/internal/gateway"
	"github.com/waflowhq/waflow-backend/internal/model"
	"github.com/waflowhq/waflow-backend/internal/payload"
	"github.com/waflowhq/waflow-backend/internal/repository"
)

// maxDeliveryAttempts bounds in-queue redelivery of a single message; the
// retry engine owns longer-horizon retries from durable state.
const maxDeliveryAttempts = 3

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", "worker").Logger()

	cfg := config.Load()

	conn, err := db.Open(cfg.DSN())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	audienceRepo := &repository.AudienceRepository{DB: conn}
	sender := gateway.NewClient(cfg.GatewayURL, cfg.GatewayToken)

	amqpConn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer amqpConn.Close()

	ch, err := amqpConn.Channel()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open a channel")
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		cfg.DispatchQueue, // name
		true,              // durable
		false,             // delete when unused
		false,             // exclusive
		false,             // no-wait
		nil,               // arguments
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to declare queue")
	}

	msgs, err := ch.Consume(
		q.Name,
		"",
		false, // autoAck off: ack only after the send outcome is recorded
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to register consumer")
	}

	logger.Info().Str("queue", q.Name).Msg("worker running, waiting for messages")

	for d := range msgs {
		var p payload.GatewayPayload
		if err := json.Unmarshal(d.Body, &p); err != nil {
			logger.Error().Err(err).Msg("invalid job body, dropping")
			d.Ack(false)
			continue
		}

		if err := deliver(context.Background(), sender, audienceRepo, &p, logger); err != nil {
			attempts := deliveryAttempts(d.Headers)
			logger.Warn().Err(err).Str("to", p.To).Int32("attempt", attempts).Msg("delivery failed")
			if attempts < maxDeliveryAttempts {
				// Requeue with the attempt counter bumped; a plain nack-requeue
				// would lose count.
				perr := ch.Publish("", q.Name, false, false, amqp.Publishing{
					ContentType:  "application/json",
					DeliveryMode: amqp.Persistent,
					MessageId:    d.MessageId,
					Headers:      amqp.Table{"x-retry-count": attempts},
					Body:         d.Body,
				})
				if perr != nil {
					logger.Error().Err(perr).Msg("requeue failed, message redelivered by broker")
					d.Nack(false, true)
					continue
				}
			} else if p.CampaignAudienceID != 0 {
				if _, uerr := audienceRepo.UpdateStatus(context.Background(),
					p.CampaignAudienceID, model.MessageStatusFailed, err.Error()); uerr != nil {
					logger.Error().Err(uerr).Msg("could not record delivery failure")
				}
			}
		}
		d.Ack(false)
	}
}

// deliver posts the payload to the gateway and records the gateway message id
// on the audience row; that id is the key delivery receipts correlate on.
func deliver(ctx context.Context, sender gateway.Sender, repo *repository.AudienceRepository, p *payload.GatewayPayload, logger zerolog.Logger) error {
	externalID, err := sender.Send(ctx, p)
	if err != nil {
		return err
	}

	if p.CampaignAudienceID != 0 {
		if err := repo.SetMessageID(ctx, p.CampaignAudienceID, externalID); err != nil {
			// The send already happened; a receipt may now arrive before the
			// id is recorded and go through the correlation-miss path.
			logger.Error().Err(err).Str("message_id", externalID).Msg("could not record gateway message id")
			return nil
		}
	}
	logger.Info().Str("to", p.To).Str("message_id", externalID).Bool("auto_reply", p.IsAutoReply).
		Msg("message delivered to gateway")
	return nil
}

func deliveryAttempts(headers amqp.Table) int32 {
	if headers == nil {
		return 1
	}
	if v, ok := headers["x-retry-count"]; ok {
		switch n := v.(type) {
		case int32:
			return n + 1
		case int64:
			return int32(n) + 1
		}
	}
	return 1
}
