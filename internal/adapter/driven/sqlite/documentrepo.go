package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ericfisherdev/recibos/internal/domain/model"
	"github.com/ericfisherdev/recibos/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.DocumentCatalog = (*DocumentRepo)(nil)

// DocumentRepo is the SQLite implementation of the DocumentCatalog port.
// Saving the same path again replaces the earlier row.
type DocumentRepo struct {
	db *DB
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// Record inserts or replaces the catalog entry for rec.Path.
func (r *DocumentRepo) Record(ctx context.Context, rec model.DocumentRecord) error {
	const query = `
		INSERT INTO documents (bill_id, supply_id, filename, path, size, pages, placeholder, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET
			bill_id = excluded.bill_id,
			supply_id = excluded.supply_id,
			filename = excluded.filename,
			size = excluded.size,
			pages = excluded.pages,
			placeholder = excluded.placeholder,
			saved_at = excluded.saved_at`

	_, err := r.db.Writer.ExecContext(ctx, query,
		rec.BillID,
		rec.SupplyID,
		rec.Filename,
		rec.Path,
		rec.Size,
		rec.Pages,
		boolToInt(rec.Placeholder),
		rec.SavedAt.UTC().Format(sqliteTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("record document %s: %w", rec.Path, err)
	}
	return nil
}

// ListBySupply returns the documents saved for supplyID, newest first.
func (r *DocumentRepo) ListBySupply(ctx context.Context, supplyID string) ([]model.DocumentRecord, error) {
	const query = `SELECT id, bill_id, supply_id, filename, path, size, pages, placeholder, saved_at
		FROM documents WHERE supply_id = ? ORDER BY saved_at DESC, id DESC`
	rows, err := r.db.Reader.QueryContext(ctx, query, supplyID)
	if err != nil {
		return nil, fmt.Errorf("list documents for %s: %w", supplyID, err)
	}
	return scanDocuments(rows)
}

// ListAll returns every catalogued document, newest first.
func (r *DocumentRepo) ListAll(ctx context.Context) ([]model.DocumentRecord, error) {
	const query = `SELECT id, bill_id, supply_id, filename, path, size, pages, placeholder, saved_at
		FROM documents ORDER BY saved_at DESC, id DESC`
	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]model.DocumentRecord, error) {
	defer rows.Close()

	records := []model.DocumentRecord{}
	for rows.Next() {
		var rec model.DocumentRecord
		var placeholder int
		var savedAt string
		if err := rows.Scan(&rec.ID, &rec.BillID, &rec.SupplyID, &rec.Filename, &rec.Path,
			&rec.Size, &rec.Pages, &placeholder, &savedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		rec.Placeholder = placeholder != 0

		t, err := parseTime(savedAt)
		if err != nil {
			return nil, fmt.Errorf("parse saved_at for %s: %w", rec.Path, err)
		}
		rec.SavedAt = t

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return records, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
