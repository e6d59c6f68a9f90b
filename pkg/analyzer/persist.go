package analyzer

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/tubepulse/tubepulse/pkg/cache"
	"github.com/tubepulse/tubepulse/pkg/models"
)

// SnapshotStore persists cache snapshots between runs.
type SnapshotStore interface {
	Save(ctx context.Context, name string, records []models.CacheRecord) error
	Load(ctx context.Context, name string) ([]models.CacheRecord, error)
}

// SaveCaches writes the live entries of both caches to store.
func (s *Service) SaveCaches(ctx context.Context, store SnapshotStore) error {
	sentiment, err := encodeSnapshots(s.sentiment.Export())
	if err != nil {
		return err
	}
	if err := store.Save(ctx, SentimentCacheName, sentiment); err != nil {
		return fmt.Errorf("save %s cache: %w", SentimentCacheName, err)
	}

	batch, err := encodeSnapshots(s.batch.Export())
	if err != nil {
		return err
	}
	if err := store.Save(ctx, BatchCacheName, batch); err != nil {
		return fmt.Errorf("save %s cache: %w", BatchCacheName, err)
	}

	s.logger.Info("cache snapshots saved",
		zap.Int("sentiment_entries", len(sentiment)),
		zap.Int("batch_entries", len(batch)),
	)
	return nil
}

// LoadCaches restores both caches from store. Entries keep their original creation time;
// expired and failed entries are skipped. It returns the number of entries restored.
func (s *Service) LoadCaches(ctx context.Context, store SnapshotStore) (int, error) {
	sentimentRecs, err := store.Load(ctx, SentimentCacheName)
	if err != nil {
		return 0, fmt.Errorf("load %s cache: %w", SentimentCacheName, err)
	}
	sentiment, err := decodeSnapshots[models.Outcome](sentimentRecs)
	if err != nil {
		return 0, fmt.Errorf("load %s cache: %w", SentimentCacheName, err)
	}

	batchRecs, err := store.Load(ctx, BatchCacheName)
	if err != nil {
		return 0, fmt.Errorf("load %s cache: %w", BatchCacheName, err)
	}
	batch, err := decodeSnapshots[models.BatchResult](batchRecs)
	if err != nil {
		return 0, fmt.Errorf("load %s cache: %w", BatchCacheName, err)
	}

	n := s.sentiment.Restore(sentiment) + s.batch.Restore(batch)
	s.logger.Info("cache snapshots loaded", zap.Int("entries", n))
	return n, nil
}

func encodeSnapshots[V any](snaps []cache.Snapshot[V]) ([]models.CacheRecord, error) {
	records := make([]models.CacheRecord, 0, len(snaps))
	for _, sn := range snaps {
		payload, err := json.Marshal(sn.Entry.Result)
		if err != nil {
			return nil, fmt.Errorf("encode cache entry: %w", err)
		}
		records = append(records, models.CacheRecord{
			Fingerprint: sn.Fingerprint,
			Payload:     payload,
			CreatedAt:   sn.Entry.CreatedAt,
			TTL:         sn.Entry.TTL,
		})
	}
	return records, nil
}

func decodeSnapshots[V any](records []models.CacheRecord) ([]cache.Snapshot[V], error) {
	snaps := make([]cache.Snapshot[V], 0, len(records))
	for _, r := range records {
		var v V
		if err := json.Unmarshal(r.Payload, &v); err != nil {
			return nil, fmt.Errorf("decode cache entry %s: %w", r.Fingerprint, err)
		}
		snaps = append(snaps, cache.Snapshot[V]{
			Fingerprint: r.Fingerprint,
			Entry:       cache.Entry[V]{Result: v, CreatedAt: r.CreatedAt, TTL: r.TTL},
		})
	}
	return snaps, nil
}
