// Package archive exports support messages to Kafka for long-term
// retention. Delivery is best effort and never blocks the mailbox.
package archive

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"tutorhub/config"
	"tutorhub/db"
	"tutorhub/pkg/logger"
	"tutorhub/pkg/metrics"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/google/uuid"
)

const (
	BufferSize         = 1000
	BatchFlushSize     = 50
	BatchFlushInterval = 200 * time.Millisecond
	MaxRetries         = 3
	DeliveryTimeout    = 5 * time.Second
)

// Event is one archived support message
type Event struct {
	ID       string       `json:"id"`
	UserID   string       `json:"userId"`
	UserName string       `json:"userName"`
	Sender   db.Sender    `json:"sender"`
	Text     string       `json:"text"`
	Time     db.Timestamp `json:"time"`
}

func NewEvent(userID, userName string, msg db.ChatMessage) Event {
	return Event{
		ID:       uuid.NewString(),
		UserID:   userID,
		UserName: userName,
		Sender:   msg.Sender,
		Text:     msg.Text,
		Time:     msg.Time,
	}
}

// Sink accepts events without blocking
type Sink interface {
	Archive(Event)
}

// Discard drops every event; used when archiving is disabled
type Discard struct{}

func (Discard) Archive(Event) {}

// Producer is the subset of *kafka.Producer the archive needs
type Producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Close()
}

type Options struct {
	Logger *logger.Logger
	// RetryBackoff is multiplied by the attempt number between retries
	RetryBackoff time.Duration
}

type KafkaArchive struct {
	producer Producer
	topic    string
	log      *logger.Logger
	backoff  time.Duration

	buffer       chan Event
	shutdownOnce sync.Once
	shutdownChan chan struct{}
	wg           sync.WaitGroup
}

// NewKafkaArchive connects a producer using cfg
func NewKafkaArchive(cfg config.KafkaConfig, log *logger.Logger) (*KafkaArchive, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Address,
		"client.id":         "tutorhub-ticket-archive",
		"acks":              "all",
		"retries":           3,
		"retry.backoff.ms":  100,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return New(p, cfg.Topic, Options{Logger: log}), nil
}

// New starts the delivery worker over an existing producer
func New(producer Producer, topic string, opts Options) *KafkaArchive {
	if opts.Logger == nil {
		opts.Logger = logger.GetDefault()
	}
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = time.Second
	}

	a := &KafkaArchive{
		producer:     producer,
		topic:        topic,
		log:          opts.Logger.Component("archive").WithField("topic", topic),
		backoff:      opts.RetryBackoff,
		buffer:       make(chan Event, BufferSize),
		shutdownChan: make(chan struct{}),
	}

	a.wg.Add(1)
	go a.writer()
	return a
}

// Archive queues ev; a full buffer drops it
func (a *KafkaArchive) Archive(ev Event) {
	select {
	case <-a.shutdownChan:
		metrics.RecordArchiveEvent("dropped")
		return
	default:
	}

	select {
	case a.buffer <- ev:
		metrics.RecordArchiveEvent("queued")
	default:
		metrics.RecordArchiveEvent("dropped")
		a.log.WithField("user_id", ev.UserID).Warn("archive buffer full, dropping message")
	}
}

func (a *KafkaArchive) writer() {
	defer a.wg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, BatchFlushSize)
	flush := func() {
		if len(batch) > 0 {
			a.flushBatch(batch)
			batch = batch[:0]
		}
	}

	for {
		select {
		case ev := <-a.buffer:
			batch = append(batch, ev)
			if len(batch) >= BatchFlushSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-a.shutdownChan:
			// Drain whatever was queued before shutdown
			for {
				select {
				case ev := <-a.buffer:
					batch = append(batch, ev)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (a *KafkaArchive) flushBatch(batch []Event) {
	sent := 0
	for _, ev := range batch {
		if err := a.sendWithRetry(ev, MaxRetries); err != nil {
			metrics.RecordArchiveEvent("failed")
			a.log.WithError(err).WithField("event_id", ev.ID).Error("failed to archive message")
			continue
		}
		sent++
		metrics.RecordArchiveEvent("sent")
	}

	a.log.WithFields(map[string]any{
		"batch_size": len(batch),
		"sent":       sent,
	}).Debug("archive batch processed")
}

// sendWithRetry keys messages by user so one user's log stays ordered
// within a partition
func (a *KafkaArchive) sendWithRetry(ev Event, maxRetries int) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	topic := a.topic
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(ev.UserID),
		Value:          payload,
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(a.backoff * time.Duration(attempt))
		}

		deliveryChan := make(chan kafka.Event, 1)
		if err := a.producer.Produce(msg, deliveryChan); err != nil {
			lastErr = err
			continue
		}

		select {
		case e := <-deliveryChan:
			m, ok := e.(*kafka.Message)
			if !ok {
				lastErr = fmt.Errorf("unexpected delivery event %v", e)
				continue
			}
			if m.TopicPartition.Error != nil {
				lastErr = m.TopicPartition.Error
				continue
			}
			return nil
		case <-time.After(DeliveryTimeout):
			lastErr = fmt.Errorf("delivery timeout")
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

// Close flushes queued events and closes the producer
func (a *KafkaArchive) Close() error {
	a.shutdownOnce.Do(func() {
		close(a.shutdownChan)
		a.wg.Wait()
		a.producer.Close()
		a.log.Info("ticket archive shutdown complete")
	})
	return nil
}

var (
	_ Sink     = (*KafkaArchive)(nil)
	_ Sink     = Discard{}
	_ Producer = (*kafka.Producer)(nil)
)
