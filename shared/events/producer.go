package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/adboardhq/platform/shared/utils"
)

// Producer publishes enforcement events to Kafka through a worker pool. The
// enqueue path never blocks request or sweep handling; a full queue drops
// the event with a log line. Writes run behind a circuit breaker so a sick
// broker cannot stall the workers on every event.
type Producer struct {
	writer       *kafka.Writer
	eventChan    chan Event
	workerCount  int
	breaker      *utils.CircuitBreaker
	shutdownChan chan struct{}
	wg           sync.WaitGroup
}

// NewProducer creates a producer with its worker pool running.
func NewProducer(broker string) (*Producer, error) {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	p := &Producer{
		writer:       writer,
		eventChan:    make(chan Event, 1000),
		workerCount:  4,
		breaker:      utils.NewCircuitBreaker(5, 30*time.Second),
		shutdownChan: make(chan struct{}),
	}

	p.startWorkers()

	return p, nil
}

func (p *Producer) startWorkers() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.eventWorker(i)
	}
	logrus.Infof("[events] Started %d event workers", p.workerCount)
}

func (p *Producer) eventWorker(id int) {
	defer p.wg.Done()

	for {
		select {
		case event := <-p.eventChan:
			err := p.breaker.Call(func() error {
				return p.sendEventSync(event)
			})
			if err != nil {
				logrus.Errorf("[events worker %d] Failed to publish %s for tenant %s: %v",
					id, event.Type, event.TenantID, err)
			}
		case <-p.shutdownChan:
			return
		}
	}
}

// Emit queues an event asynchronously (non-blocking).
func (p *Producer) Emit(event Event) error {
	select {
	case p.eventChan <- event:
		return nil
	default:
		return fmt.Errorf("event queue full, %s for tenant %s dropped", event.Type, event.TenantID)
	}
}

func (p *Producer) sendEventSync(event Event) error {
	message, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Topic: Topic,
		Key:   []byte(event.TenantID.String()),
		Value: message,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "tenant_id", Value: []byte(event.TenantID.String())},
			{Key: "reason", Value: []byte(event.Reason)},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event to Kafka: %w", err)
	}

	return nil
}

// Close drains the workers and closes the Kafka writer.
func (p *Producer) Close() error {
	close(p.shutdownChan)
	p.wg.Wait()
	close(p.eventChan)

	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	return nil
}
