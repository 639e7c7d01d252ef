package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReceiptDeduper records ledger transaction ids already handed to the matcher,
// so JetStream redeliveries are not counted twice across restarts
type ReceiptDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewReceiptDeduper creates a deduper whose keys expire after ttl
func NewReceiptDeduper(client *redis.Client, ttl time.Duration) *ReceiptDeduper {
	return &ReceiptDeduper{client: client, ttl: ttl}
}

func receiptKey(txID string) string { return "lotto:receipt:" + txID }

// MarkSeen returns true the first time txID is marked
func (d *ReceiptDeduper) MarkSeen(ctx context.Context, txID string) (bool, error) {
	fresh, err := d.client.SetNX(ctx, receiptKey(txID), 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark receipt %s: %w", txID, err)
	}
	return fresh, nil
}

// Forget releases txID so a redelivery is processed
func (d *ReceiptDeduper) Forget(ctx context.Context, txID string) error {
	if err := d.client.Del(ctx, receiptKey(txID)).Err(); err != nil {
		return fmt.Errorf("failed to forget receipt %s: %w", txID, err)
	}
	return nil
}
