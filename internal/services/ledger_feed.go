package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/devitachiui22/aotravel-sub002/internal/models"
)

// LedgerFeed streams committed ledger entries to Kafka for downstream
// consumers (reconciliation jobs, audit archive). Publishing happens
// strictly after commit and is fire-and-forget.
type LedgerFeed struct {
	writer *kafka.Writer
}

func NewLedgerFeed(brokers []string, topic string) *LedgerFeed {
	if len(brokers) == 0 {
		return &LedgerFeed{}
	}
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &LedgerFeed{writer: w}
}

// PublishEntry writes one committed entry to the feed, keyed by its
// reference id so both legs of a settlement land in the same partition.
func (f *LedgerFeed) PublishEntry(entry models.LedgerEntry) {
	if f == nil || f.writer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, err := json.Marshal(entry)
	if err != nil {
		log.Printf("Error marshaling ledger entry %s: %v", entry.ReferenceID, err)
		return
	}
	if err := f.writer.WriteMessages(ctx, kafka.Message{Key: []byte(entry.ReferenceID), Value: b}); err != nil {
		log.Printf("Error publishing ledger entry %s: %v", entry.ReferenceID, err)
	}
}

func (f *LedgerFeed) Close() error {
	if f == nil || f.writer == nil {
		return nil
	}
	return f.writer.Close()
}
