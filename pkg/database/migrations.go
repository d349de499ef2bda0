package database

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

const createDocumentsTable = `
CREATE TABLE IF NOT EXISTS openapi_documents (
	id SERIAL PRIMARY KEY,
	name VARCHAR(255) UNIQUE NOT NULL,
	title VARCHAR(500),
	version VARCHAR(100),
	content TEXT NOT NULL,
	file_format VARCHAR(10) DEFAULT 'yaml',
	file_size INTEGER,
	checksum CHAR(64) NOT NULL,
	is_active BOOLEAN DEFAULT false,
	created_at TIMESTAMP(6) DEFAULT NOW(),
	updated_at TIMESTAMP(6) DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_openapi_documents_is_active ON openapi_documents(is_active);

CREATE OR REPLACE FUNCTION update_updated_at_column()
RETURNS TRIGGER AS $$
BEGIN
	NEW.updated_at = NOW();
	RETURN NEW;
END;
$$ language 'plpgsql';

DROP TRIGGER IF EXISTS update_openapi_documents_updated_at ON openapi_documents;
CREATE TRIGGER update_openapi_documents_updated_at
	BEFORE UPDATE ON openapi_documents
	FOR EACH ROW
	EXECUTE FUNCTION update_updated_at_column();
`

const createCatalogsTable = `
CREATE TABLE IF NOT EXISTS tool_catalogs (
	id SERIAL PRIMARY KEY,
	document_id INTEGER UNIQUE NOT NULL REFERENCES openapi_documents(id) ON DELETE CASCADE,
	artifact TEXT NOT NULL,
	tool_count INTEGER NOT NULL,
	generated_at TIMESTAMP(6) DEFAULT NOW()
);
`

// Migration is one idempotent schema step.
type Migration struct {
	Name  string
	Query string
}

// Migrations lists the schema steps in order.
var Migrations = []Migration{
	{Name: "create_openapi_documents", Query: createDocumentsTable},
	{Name: "create_tool_catalogs", Query: createCatalogsTable},
}

// RunMigrations runs all database migrations
func RunMigrations(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, m := range Migrations {
		if _, err := db.ExecContext(ctx, m.Query); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Name, err)
		}
		logger.Debug("migration applied", zap.String("migration", m.Name))
	}
	logger.Info("database migrations completed", zap.Int("count", len(Migrations)))
	return nil
}

// DropTables removes every table created by RunMigrations.
func DropTables(ctx context.Context, db *sql.DB) error {
	query := `
	DROP TABLE IF EXISTS tool_catalogs CASCADE;
	DROP TRIGGER IF EXISTS update_openapi_documents_updated_at ON openapi_documents;
	DROP TABLE IF EXISTS openapi_documents CASCADE;
	DROP FUNCTION IF EXISTS update_updated_at_column();
	`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	return nil
}
