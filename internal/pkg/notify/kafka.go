// Package notify publishes order list changes to Kafka, so systems outside
// the restaurant floor can follow the same feed the terminals see.
package notify

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/codec"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/order"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// DefaultBufferSize is the number of snapshots buffered while Kafka is slow.
const DefaultBufferSize = 256

// Writer is the part of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher sends every order list snapshot to a Kafka topic.
// Snapshots are numbered in the order the store produced them.
type KafkaPublisher struct {
	writer     Writer
	bufferSize int

	mu       sync.Mutex
	sequence uint64
	queue    chan kafka.Message
	closed   bool
}

// Cfg configures a KafkaPublisher.
type Cfg func(*KafkaPublisher) error

// WithBrokers writes to topic on the given brokers.
func WithBrokers(brokers []string, topic string) Cfg {
	return func(p *KafkaPublisher) error {
		if len(brokers) == 0 {
			return errors.New("no kafka brokers")
		}
		if topic == "" {
			return errors.New("kafka topic is empty")
		}
		p.writer = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		}
		return nil
	}
}

// WithWriter sets the writer directly.
func WithWriter(w Writer) Cfg {
	return func(p *KafkaPublisher) error {
		p.writer = w
		return nil
	}
}

// WithBufferSize sets how many snapshots may wait for Kafka before new ones are dropped.
func WithBufferSize(n int) Cfg {
	return func(p *KafkaPublisher) error {
		if n <= 0 {
			return errors.New("buffer size must be positive")
		}
		p.bufferSize = n
		return nil
	}
}

// NewKafkaPublisher creates a new KafkaPublisher.
func NewKafkaPublisher(cfgs ...Cfg) (*KafkaPublisher, error) {
	p := &KafkaPublisher{
		bufferSize: DefaultBufferSize,
	}
	for _, cfg := range cfgs {
		if err := cfg(p); err != nil {
			return nil, errors.Wrap(err, "apply KafkaPublisher cfg failed")
		}
	}
	if p.writer == nil {
		return nil, errors.New("kafka publisher requires brokers or a writer")
	}
	p.queue = make(chan kafka.Message, p.bufferSize)
	return p, nil
}

// Publish queues a snapshot for delivery without blocking. It is meant to be
// registered with order.Store.OnOrdersChanged.
func (p *KafkaPublisher) Publish(orders []order.Order) {
	env, err := codec.NewEnvelope(codec.TypeOrdersList, codec.FromOrders(orders))
	if err != nil {
		logger.WithError(err).Error("build orders list failed")
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.sequence++
	msg := kafka.Message{
		Key:   []byte(codec.TypeOrdersList),
		Value: []byte(env.Data),
		Headers: []kafka.Header{
			{Key: "sequence", Value: []byte(strconv.FormatUint(p.sequence, 10))},
		},
	}
	select {
	case p.queue <- msg:
	default:
		logger.WithField("sequence", p.sequence).Warn("kafka buffer full, dropping order snapshot")
	}
}

// Run writes queued snapshots until ctx is done or Close is called.
func (p *KafkaPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-p.queue:
			if !ok {
				return nil
			}
			if err := p.writer.WriteMessages(ctx, msg); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.WithError(err).Error("publish order snapshot failed")
			}
		}
	}
}

// Close stops accepting snapshots and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.queue)
	return errors.Wrap(p.writer.Close(), "close kafka writer failed")
}
