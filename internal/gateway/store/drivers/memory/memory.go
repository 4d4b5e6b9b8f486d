// Package memory provides an in-process ledger for single-instance
// deployments and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tabwave/stepgate/internal/gateway/domain"
	"github.com/tabwave/stepgate/internal/gateway/store"
)

type key struct {
	host    string
	subject string
}

type Ledger struct {
	mu       sync.Mutex
	requests map[key]domain.AccessRequest
}

func NewLedger() *Ledger {
	return &Ledger{requests: make(map[key]domain.AccessRequest)}
}

func (l *Ledger) StoreAccessRequest(_ context.Context, req domain.AccessRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{host: req.Host, subject: req.Subject}
	delete(l.requests, k)
	l.requests[k] = req
	return nil
}

func (l *Ledger) GetAccessRequest(_ context.Context, host, subject string) (domain.AccessRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	req, ok := l.requests[key{host: host, subject: subject}]
	if !ok {
		return domain.AccessRequest{}, store.ErrNotFound
	}
	return req, nil
}

func (l *Ledger) DeleteAccessRequests(_ context.Context, host, subject string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.requests, key{host: host, subject: subject})
	return nil
}

func (l *Ledger) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var removed int64
	for k, req := range l.requests {
		if req.IssuedAt.Before(cutoff) {
			delete(l.requests, k)
			removed++
		}
	}
	return removed, nil
}

func (l *Ledger) Ping(context.Context) error { return nil }

func (l *Ledger) Close() error { return nil }
