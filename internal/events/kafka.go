package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"unitledger/pkg/domain"
)

// HeaderEventID carries a unique id per published record.
const HeaderEventID = "event-id"

// HeaderEventKind carries the event kind so consumers can filter without decoding.
const HeaderEventKind = "event-kind"

type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaSink publishes events as JSON records keyed by unit id, so every
// event of a unit lands on the same partition in order.
type KafkaSink struct {
	client producer
	topic  string
	newID  func() string
}

// NewKafkaSink connects to brokers and produces to topic.
func NewKafkaSink(brokers []string, topic string, opts ...kgo.Opt) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka sink: no brokers configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka sink: topic is required")
	}
	opts = append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
	}, opts...)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return newKafkaSink(client, topic), nil
}

func newKafkaSink(client producer, topic string) *KafkaSink {
	return &KafkaSink{client: client, topic: topic, newID: uuid.NewString}
}

// Publish produces one record and waits for the broker to acknowledge it.
func (s *KafkaSink) Publish(ctx context.Context, event domain.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(strconv.FormatUint(uint64(event.UnitID), 10)),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: HeaderEventID, Value: []byte(s.newID())},
			{Key: HeaderEventKind, Value: []byte(event.Kind)},
		},
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce %s event: %w", event.Kind, err)
	}
	return nil
}

// Close flushes and closes the client.
func (s *KafkaSink) Close() { s.client.Close() }
