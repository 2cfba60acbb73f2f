package whatsapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/lib/pq"
	"go.mau.fi/whatsmeow/store/sqlstore"
	_ "modernc.org/sqlite"
)

// OpenSession opens the device store. Postgres URLs go through lib/pq;
// anything else is treated as a modernc SQLite DSN.
func OpenSession(ctx context.Context, dsn string, logger *slog.Logger) (*sqlstore.Container, error) {
	wlog := newLogger(logger, "whatsmeow-db")
	if isPostgresDSN(dsn) {
		container, err := sqlstore.New(ctx, "postgres", dsn, wlog)
		if err != nil {
			return nil, fmt.Errorf("open whatsapp session store: %w", err)
		}
		return container, nil
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open whatsapp session db: %w", err)
	}
	db.SetMaxOpenConns(1)
	container := sqlstore.NewWithDB(db, "sqlite3", wlog)
	if err := container.Upgrade(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("upgrade whatsapp session store: %w", err)
	}
	return container, nil
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}
