package ch

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/tracefold/app-server/config"
)

// DirectClickhouse inserts rows straight into ClickHouse. Used for CLOUD
// workspaces.
type DirectClickhouse struct {
	conn driver.Conn
}

// NewDirectClickhouse opens a native-protocol connection.
func NewDirectClickhouse(cfg config.ClickhouseConfig) (*DirectClickhouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.URL},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &DirectClickhouse{conn: conn}, nil
}

// NewDirectClickhouseWithConn wraps an existing connection. Used by tests.
func NewDirectClickhouseWithConn(conn driver.Conn) *DirectClickhouse {
	return &DirectClickhouse{conn: conn}
}

// Ping verifies connectivity. Used by the readiness probe.
func (d *DirectClickhouse) Ping(ctx context.Context) error {
	return d.conn.Ping(ctx)
}

// insertDirect batch-inserts rows of one table, preserving item order.
func insertDirect[T Insertable](ctx context.Context, d *DirectClickhouse, items []T) error {
	if len(items) == 0 {
		return nil
	}

	if items[0].AsyncInsert() {
		ctx = clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
			"async_insert":          1,
			"wait_for_async_insert": 0,
		}))
	}

	table := items[0].Table()
	batch, err := d.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", table))
	if err != nil {
		return fmt.Errorf("failed to prepare batch for table %s: %w", table, err)
	}

	for i := range items {
		if err := batch.AppendStruct(&items[i]); err != nil {
			return fmt.Errorf("failed to append row to table %s: %w", table, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch to table %s: %w", table, err)
	}
	return nil
}
