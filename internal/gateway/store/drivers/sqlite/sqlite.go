// Package sqlite provides the relational ledger backend for
// multi-process deployments sharing one database file or volume.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tabwave/stepgate/internal/gateway/domain"
	"github.com/tabwave/stepgate/internal/gateway/store"

	_ "modernc.org/sqlite"
)

type Ledger struct {
	db  *sql.DB
	dsn string
}

func NewLedger(dsn string) (*Ledger, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Serialized writes avoid SQLITE_BUSY on the replace transaction.
	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Ledger{db: db, dsn: dsn}, nil
}

// StoreAccessRequest deletes any prior record for the key and inserts
// the new one inside a single transaction, so readers never observe
// zero or two records for a (host, subject) pair.
func (l *Ledger) StoreAccessRequest(ctx context.Context, req domain.AccessRequest) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM access_requests WHERE host = ? AND subject = ?`,
		req.Host, req.Subject,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO access_requests (host, subject, issued_at, code_hash) VALUES (?, ?, ?, ?)`,
		req.Host, req.Subject, req.IssuedAt.Unix(), req.CodeHash,
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (l *Ledger) GetAccessRequest(ctx context.Context, host, subject string) (domain.AccessRequest, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT host, subject, issued_at, code_hash FROM access_requests WHERE host = ? AND subject = ?`,
		host, subject,
	)

	var req domain.AccessRequest
	var issuedAt int64
	if err := row.Scan(&req.Host, &req.Subject, &issuedAt, &req.CodeHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AccessRequest{}, store.ErrNotFound
		}
		return domain.AccessRequest{}, err
	}
	req.IssuedAt = time.Unix(issuedAt, 0)
	return req, nil
}

func (l *Ledger) DeleteAccessRequests(ctx context.Context, host, subject string) error {
	_, err := l.db.ExecContext(ctx,
		`DELETE FROM access_requests WHERE host = ? AND subject = ?`,
		host, subject,
	)
	return err
}

func (l *Ledger) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM access_requests WHERE issued_at < ?`,
		cutoff.Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (l *Ledger) Ping(ctx context.Context) error { return l.db.PingContext(ctx) }

func (l *Ledger) Close() error { return l.db.Close() }
