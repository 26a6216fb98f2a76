package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	appErrors "github.com/waflowhq/waflow-backend/internal/errors"
)

// Publisher is the core's only contract with the durable work queue:
// published messages reach the gateway worker at least once, in an
// implementation-defined order. No caller assumes ordering or exactly-once.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) (messageID string, err error)
}

// AMQPPublisher publishes JSON payloads to a durable queue. Publish failures
// are retried briefly with exponential backoff (a closed channel is reopened
// once); a publish that still fails surfaces as ErrQueueUnavailable so the
// calling loop aborts its batch and retries on the next tick.
type AMQPPublisher struct {
	url    string
	logger zerolog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel

	declared map[string]bool
}

func NewAMQPPublisher(url string, logger zerolog.Logger) (*AMQPPublisher, error) {
	p := &AMQPPublisher{
		url:      url,
		logger:   logger,
		declared: map[string]bool{},
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	p.conn = conn
	p.ch = ch
	p.declared = map[string]bool{}
	return nil
}

func (p *AMQPPublisher) ensureQueue(routingKey string) error {
	if p.declared[routingKey] {
		return nil
	}
	_, err := p.ch.QueueDeclare(
		routingKey, // name
		true,       // durable
		false,      // delete when unused
		false,      // exclusive
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		return err
	}
	p.declared[routingKey] = true
	return nil
}

// Publish marshals the payload and publishes it persistently. The returned
// message id is generated here and stamped on the AMQP message.
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", appErrors.NewInvalidPayload(err.Error())
	}
	messageID := uuid.NewString()

	p.mu.Lock()
	defer p.mu.Unlock()

	attempt := func() error {
		if p.ch == nil {
			if err := p.connect(); err != nil {
				return err
			}
		}
		if err := p.ensureQueue(routingKey); err != nil {
			return err
		}
		err := p.ch.Publish(
			"",         // default exchange
			routingKey, // routing key
			false,      // mandatory
			false,      // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    messageID,
				Timestamp:    time.Now(),
				Body:         body,
			},
		)
		if err != nil {
			// Force a fresh connection on the next attempt.
			p.close()
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		p.logger.Error().Err(err).Str("routing_key", routingKey).Msg("publish failed")
		return "", appErrors.ErrQueueUnavailable
	}
	return messageID, nil
}

func (p *AMQPPublisher) close() {
	if p.ch != nil {
		p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

// Close shuts the channel and connection down.
func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.close()
}

var _ Publisher = (*AMQPPublisher)(nil)
