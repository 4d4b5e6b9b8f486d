// Package redis provides a ledger backend for multi-process
// deployments that already run a shared Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tabwave/stepgate/internal/gateway/domain"
	"github.com/tabwave/stepgate/internal/gateway/store"
)

const keyPrefix = "stepgate:ar:"

type record struct {
	IssuedAt int64  `json:"issued_at"`
	CodeHash string `json:"code_hash"`
}

type Ledger struct {
	client *redis.Client

	// retention bounds how long a record may linger before Redis
	// evicts it on its own. Expiry decisions still belong to the
	// caller; this only keeps abandoned challenges from accumulating.
	retention time.Duration
}

func NewLedger(addr, password string, db int, retention time.Duration) *Ledger {
	return &Ledger{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		retention: retention,
	}
}

func ledgerKey(host, subject string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, host, subject)
}

func (l *Ledger) StoreAccessRequest(ctx context.Context, req domain.AccessRequest) error {
	payload, err := json.Marshal(record{
		IssuedAt: req.IssuedAt.Unix(),
		CodeHash: req.CodeHash,
	})
	if err != nil {
		return err
	}

	key := ledgerKey(req.Host, req.Subject)
	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.Set(ctx, key, payload, l.retention)
		return nil
	})
	return err
}

func (l *Ledger) GetAccessRequest(ctx context.Context, host, subject string) (domain.AccessRequest, error) {
	payload, err := l.client.Get(ctx, ledgerKey(host, subject)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.AccessRequest{}, store.ErrNotFound
		}
		return domain.AccessRequest{}, err
	}

	var rec record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return domain.AccessRequest{}, err
	}

	return domain.AccessRequest{
		Host:     host,
		Subject:  subject,
		IssuedAt: time.Unix(rec.IssuedAt, 0),
		CodeHash: rec.CodeHash,
	}, nil
}

func (l *Ledger) DeleteAccessRequests(ctx context.Context, host, subject string) error {
	return l.client.Del(ctx, ledgerKey(host, subject)).Err()
}

// DeleteExpiredBefore scans ledger keys and removes stale records.
// Redis retention usually gets there first; this keeps the
// housekeeping contract identical across backends.
func (l *Ledger) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64

	iter := l.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		payload, err := l.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return removed, err
		}

		var rec record
		if err := json.Unmarshal(payload, &rec); err != nil {
			continue
		}
		if time.Unix(rec.IssuedAt, 0).Before(cutoff) {
			if err := l.client.Del(ctx, key).Err(); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, iter.Err()
}

func (l *Ledger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *Ledger) Close() error { return l.client.Close() }
