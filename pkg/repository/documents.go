package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ubermorgenland/firefly-iii-mcp/pkg/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const documentColumns = `id, name, title, version, content, file_format, file_size, checksum, is_active, created_at, updated_at`

// DocumentRepository handles database operations for OpenAPI documents and
// their generated tool catalogs.
type DocumentRepository struct {
	db *sql.DB
}

// NewDocumentRepository creates a new repository instance
func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*models.OpenAPIDocument, error) {
	doc := &models.OpenAPIDocument{}
	err := row.Scan(
		&doc.ID,
		&doc.Name,
		&doc.Title,
		&doc.Version,
		&doc.Content,
		&doc.FileFormat,
		&doc.FileSize,
		&doc.Checksum,
		&doc.IsActive,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	return doc, err
}

// Create inserts a new document
func (r *DocumentRepository) Create(ctx context.Context, doc *models.OpenAPIDocument) (*models.OpenAPIDocument, error) {
	query := `
		INSERT INTO openapi_documents (name, title, version, content, file_format, file_size, checksum, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		doc.Name,
		doc.Title,
		doc.Version,
		doc.Content,
		doc.FileFormat,
		doc.FileSize,
		doc.Checksum,
		doc.IsActive,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) getOne(ctx context.Context, what, where string, arg any) (*models.OpenAPIDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM openapi_documents WHERE ` + where
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document with %s %v: %w", what, arg, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// GetByID retrieves a document by its ID
func (r *DocumentRepository) GetByID(ctx context.Context, id int) (*models.OpenAPIDocument, error) {
	return r.getOne(ctx, "id", "id = $1", id)
}

// GetByName retrieves a document by its name
func (r *DocumentRepository) GetByName(ctx context.Context, name string) (*models.OpenAPIDocument, error) {
	return r.getOne(ctx, "name", "name = $1", name)
}

// GetActive retrieves the served document.
func (r *DocumentRepository) GetActive(ctx context.Context) (*models.OpenAPIDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM openapi_documents WHERE is_active = true ORDER BY updated_at DESC LIMIT 1`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("active document: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get active document: %w", err)
	}
	return doc, nil
}

// List retrieves all documents, newest first
func (r *DocumentRepository) List(ctx context.Context) ([]*models.OpenAPIDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM openapi_documents ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.OpenAPIDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// Update modifies an existing document
func (r *DocumentRepository) Update(ctx context.Context, doc *models.OpenAPIDocument) (*models.OpenAPIDocument, error) {
	query := `
		UPDATE openapi_documents
		SET name = $2, title = $3, version = $4, content = $5, file_format = $6,
		    file_size = $7, checksum = $8, is_active = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		doc.ID,
		doc.Name,
		doc.Title,
		doc.Version,
		doc.Content,
		doc.FileFormat,
		doc.FileSize,
		doc.Checksum,
		doc.IsActive,
	).Scan(&doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document with id %d: %w", doc.ID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update document: %w", err)
	}
	return doc, nil
}

// Delete removes a document and, by cascade, its catalog
func (r *DocumentRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM openapi_documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return expectOneRow(result, id)
}

// Activate marks one document as served and every other as inactive.
func (r *DocumentRepository) Activate(ctx context.Context, id int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE openapi_documents SET is_active = false WHERE is_active = true AND id <> $1`, id); err != nil {
		return fmt.Errorf("failed to deactivate documents: %w", err)
	}
	result, err := tx.ExecContext(ctx, `UPDATE openapi_documents SET is_active = true, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to activate document: %w", err)
	}
	if err := expectOneRow(result, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit activation: %w", err)
	}
	return nil
}

// Deactivate clears the active flag of one document.
func (r *DocumentRepository) Deactivate(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `UPDATE openapi_documents SET is_active = false, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate document: %w", err)
	}
	return expectOneRow(result, id)
}

func expectOneRow(result sql.Result, id int) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("document with id %d: %w", id, ErrNotFound)
	}
	return nil
}

// SaveCatalog stores the generated artifact of a document, replacing any
// previous one.
func (r *DocumentRepository) SaveCatalog(ctx context.Context, c *models.ToolCatalog) (*models.ToolCatalog, error) {
	query := `
		INSERT INTO tool_catalogs (document_id, artifact, tool_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (document_id) DO UPDATE
		SET artifact = EXCLUDED.artifact, tool_count = EXCLUDED.tool_count, generated_at = NOW()
		RETURNING id, generated_at
	`
	err := r.db.QueryRowContext(ctx, query, c.DocumentID, c.Artifact, c.ToolCount).Scan(&c.ID, &c.GeneratedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save tool catalog: %w", err)
	}
	return c, nil
}

// GetCatalog retrieves the stored artifact of a document.
func (r *DocumentRepository) GetCatalog(ctx context.Context, documentID int) (*models.ToolCatalog, error) {
	query := `SELECT id, document_id, artifact, tool_count, generated_at FROM tool_catalogs WHERE document_id = $1`
	c := &models.ToolCatalog{}
	err := r.db.QueryRowContext(ctx, query, documentID).Scan(&c.ID, &c.DocumentID, &c.Artifact, &c.ToolCount, &c.GeneratedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tool catalog for document %d: %w", documentID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get tool catalog: %w", err)
	}
	return c, nil
}
