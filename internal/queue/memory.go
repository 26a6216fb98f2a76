package queue

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// InMemoryQueue is a Publisher for tests and single-process local runs.
// Subscribed handlers run synchronously on Publish so test assertions can
// observe handler effects immediately.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(body []byte) error
	messages map[string][][]byte
	fail     error
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(body []byte) error),
		messages: make(map[string][][]byte),
	}
}

// FailWith makes every subsequent Publish return err. Used to simulate a
// queue outage.
func (q *InMemoryQueue) FailWith(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fail = err
}

func (q *InMemoryQueue) Publish(_ context.Context, routingKey string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	q.mu.Lock()
	if q.fail != nil {
		defer q.mu.Unlock()
		return "", q.fail
	}
	q.messages[routingKey] = append(q.messages[routingKey], body)
	handlers := q.handlers[routingKey]
	q.mu.Unlock()

	for _, handler := range handlers {
		if err := handler(body); err != nil {
			return "", err
		}
	}
	return uuid.NewString(), nil
}

// Subscribe registers a handler for a routing key.
func (q *InMemoryQueue) Subscribe(routingKey string, handler func(body []byte) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[routingKey] = append(q.handlers[routingKey], handler)
}

// Messages returns the raw bodies published to a routing key.
func (q *InMemoryQueue) Messages(routingKey string) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([][]byte, len(q.messages[routingKey]))
	copy(out, q.messages[routingKey])
	return out
}

var _ Publisher = (*InMemoryQueue)(nil)
