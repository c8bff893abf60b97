package indexer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"registrar/internal/event/models"
)

// Kafka publishes event snapshots to a topic the search indexer consumes.
// Messages are keyed by event id so per-event ordering is preserved and the
// consumer can compact to the latest snapshot.
type Kafka struct {
	client *kgo.Client
	topic  string
}

// NewKafka constructs a publisher and ensures the topic exists. The produced
// record is the full public document snapshot; the consumer owns mapping it
// into its index schema.
func NewKafka(ctx context.Context, brokers []string, topic string) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := ensureTopic(ctx, client, topic); err != nil {
		client.Close()
		return nil, err
	}
	return &Kafka{client: client, topic: topic}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	topics, err := adm.ListTopics(ctx, topic)
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}
	if topics.Has(topic) {
		return nil
	}
	if _, err := adm.CreateTopic(ctx, -1, -1, nil, topic); err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}

// snapshot is the wire form of an index refresh. Derived fields are
// precomputed so the consumer does not need to replay the action log.
type snapshot struct {
	ID          string             `json:"id"`
	Type        string             `json:"type"`
	Status      models.EventStatus `json:"status"`
	AssignedTo  string             `json:"assignedTo,omitempty"`
	Declaration models.Declaration `json:"declaration,omitempty"`
	UpdatedAt   string             `json:"updatedAt"`
	ActionCount int                `json:"actionCount"`
}

func (k *Kafka) IndexEvent(ctx context.Context, doc *models.EventDocument) error {
	snap := snapshot{
		ID:          doc.ID.String(),
		Type:        doc.Type,
		Status:      doc.Status(),
		Declaration: doc.Declaration(),
		UpdatedAt:   doc.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		ActionCount: doc.Version(),
	}
	if holder, assigned := doc.AssignedTo(); assigned {
		snap.AssignedTo = holder.String()
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal index snapshot: %w", err)
	}

	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(doc.ID.String()),
		Value: payload,
	}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce index snapshot: %w", err)
	}
	return nil
}

// Close flushes and releases the underlying client.
func (k *Kafka) Close() {
	k.client.Close()
}
