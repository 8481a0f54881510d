package ch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned by read helpers when no row matches.
var ErrNotFound = errors.New("ch: row not found")

// GetSpan reads one project-scoped span row.
func (d *DirectClickhouse) GetSpan(ctx context.Context, projectID, spanID uuid.UUID) (*CHSpan, error) {
	var row CHSpan
	err := d.conn.QueryRow(ctx,
		"SELECT * FROM spans WHERE project_id = ? AND span_id = ? LIMIT 1",
		projectID, spanID,
	).ScanStruct(&row)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read span %s: %w", spanID, err)
	}
	return &row, nil
}

// GetTrace reads one project-scoped trace row.
func (d *DirectClickhouse) GetTrace(ctx context.Context, projectID, traceID uuid.UUID) (*CHTrace, error) {
	var row CHTrace
	err := d.conn.QueryRow(ctx,
		"SELECT * FROM traces_replacing FINAL WHERE project_id = ? AND id = ? LIMIT 1",
		projectID, traceID,
	).ScanStruct(&row)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read trace %s: %w", traceID, err)
	}
	return &row, nil
}

func isNoRows(err error) bool {
	// clickhouse-go reports an empty result set through sql.ErrNoRows
	// semantics on ScanStruct; match loosely to avoid importing database/sql
	// comparisons scattered around.
	return err != nil && err.Error() == "sql: no rows in result set"
}
