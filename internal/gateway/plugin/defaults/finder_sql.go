package defaults

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/tabwave/stepgate/internal/gateway/domain"
	"github.com/tabwave/stepgate/internal/gateway/plugin"
)

// SQLFinder validates subjects against an existing user table. The
// query must take the normalized subject as its single parameter and
// return at least one row for valid subjects, e.g.
//
//	SELECT 1 FROM users WHERE email = ?
type SQLFinder struct {
	db    *sql.DB
	query string
}

func NewSQLFinder(settings plugin.Settings) (*SQLFinder, error) {
	driver := settings.GetString("driver", "sqlite")
	dsn := settings.GetString("dsn", "")
	query := settings.GetString("query", "")
	if dsn == "" || query == "" {
		return nil, fmt.Errorf("defaults: sql finder requires dsn and query settings")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("defaults: sql finder open: %w", err)
	}

	return &SQLFinder{db: db, query: query}, nil
}

func (f *SQLFinder) Name() string              { return "SQL" }
func (f *SQLFinder) Category() plugin.Category { return plugin.CategoryFinder }

func (f *SQLFinder) IsValidSubject(ctx context.Context, _, subject string) (bool, error) {
	row := f.db.QueryRowContext(ctx, f.query, domain.NormalizeSubject(subject))

	var one any
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (f *SQLFinder) Close() error { return f.db.Close() }
