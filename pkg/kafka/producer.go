package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/EchoLayerS/EchoLayer/pkg/models"
)

// Producer publishes reward transactions to the ledger collaborator's topic.
type Producer struct {
	client      *kgo.Client
	logger      *logrus.Logger
	clusterID   string
	ledgerTopic string
}

// NewProducer creates a new Kafka producer for outbound reward transactions.
func NewProducer(brokers []string, clusterID, clientID, ledgerTopic string, logger *logrus.Logger) (*Producer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(10 * time.Millisecond),
		kgo.ProducerBatchMaxBytes(1000000),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Producer{
		client:      client,
		logger:      logger,
		clusterID:   clusterID,
		ledgerTopic: ledgerTopic,
	}, nil
}

// Close closes the underlying client.
func (p *Producer) Close() error {
	p.client.Close()
	return nil
}

// ProduceMessage publishes a raw message to a topic.
func (p *Producer) ProduceMessage(topic string, key []byte, value []byte, headers map[string]string) error {
	record := &kgo.Record{
		Topic: topic,
		Key:   key,
		Value: value,
	}

	for k, v := range headers {
		record.Headers = append(record.Headers, kgo.RecordHeader{
			Key:   k,
			Value: []byte(v),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result := p.client.ProduceSync(ctx, record)
	if err := result.FirstErr(); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	return nil
}

// PublishTransaction hands one allocated reward transaction to the ledger
// collaborator. Only transactions with status allocated leave the service.
func (p *Producer) PublishTransaction(tx models.RewardTransaction) error {
	if tx.Status != models.StatusAllocated {
		return fmt.Errorf("refusing to publish transaction %s with status %s", tx.ID, tx.Status)
	}

	value, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction %s: %w", tx.ID, err)
	}

	headers := map[string]string{
		"reason": string(tx.Reason),
		"period": tx.Period,
	}

	return p.ProduceMessage(p.ledgerTopic, []byte(tx.ID), value, headers)
}

// PublishTransactionBatch publishes a batch of allocated transactions.
func (p *Producer) PublishTransactionBatch(txs []models.RewardTransaction) error {
	if len(txs) == 0 {
		return nil
	}

	var records []*kgo.Record
	for _, tx := range txs {
		if tx.Status != models.StatusAllocated {
			return fmt.Errorf("refusing to publish transaction %s with status %s", tx.ID, tx.Status)
		}
		value, err := json.Marshal(tx)
		if err != nil {
			return fmt.Errorf("failed to marshal transaction %s: %w", tx.ID, err)
		}
		records = append(records, &kgo.Record{
			Topic: p.ledgerTopic,
			Key:   []byte(tx.ID),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "reason", Value: []byte(tx.Reason)},
				{Key: "period", Value: []byte(tx.Period)},
			},
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results := p.client.ProduceSync(ctx, records...)
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("failed to produce batch: %w", err)
	}

	return nil
}

// HealthCheck pings the broker.
func (p *Producer) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("kafka health check failed: %w", err)
	}
	return nil
}

// GetClient returns the underlying kgo.Client for health checks.
func (p *Producer) GetClient() *kgo.Client {
	return p.client
}
