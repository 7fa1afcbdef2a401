package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Shopify/sarama"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
)

// Producer publishes ingestion events, keyed by site so that one site's
// events stay ordered within a partition.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewProducer(cfg config.KafkaConfig) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = true

	sp, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, err
	}
	return newProducer(sp, cfg.EventTopic), nil
}

func newProducer(sp sarama.SyncProducer, topic string) *Producer {
	return &Producer{producer: sp, topic: topic}
}

// Publish sends ev and waits for the broker acknowledgement
func (p *Producer) Publish(ctx context.Context, ev models.IngestionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode ingestion event %s: %w", ev.ID, err)
	}
	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.Site),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("publish ingestion event for %s: %w", ev.File, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
