package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// OpenAPIDocument represents the openapi_documents table structure
type OpenAPIDocument struct {
	ID         int        `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	Title      *string    `json:"title,omitempty" db:"title"`
	Version    *string    `json:"version,omitempty" db:"version"`
	Content    string     `json:"content" db:"content"`
	FileFormat *string    `json:"file_format,omitempty" db:"file_format"`
	FileSize   *int       `json:"file_size,omitempty" db:"file_size"`
	Checksum   string     `json:"checksum" db:"checksum"`
	IsActive   *bool      `json:"is_active,omitempty" db:"is_active"`
	CreatedAt  *time.Time `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// TableName returns the table name for the OpenAPIDocument model
func (OpenAPIDocument) TableName() string {
	return "openapi_documents"
}

// NewOpenAPIDocument creates an inactive document with its size and
// checksum filled in. format is "yaml" or "json".
func NewOpenAPIDocument(name, content, format string) *OpenAPIDocument {
	active := false
	size := len(content)
	if format == "" {
		format = "yaml"
	}
	return &OpenAPIDocument{
		Name:       name,
		Content:    content,
		FileFormat: &format,
		FileSize:   &size,
		Checksum:   Checksum(content),
		IsActive:   &active,
	}
}

// Active reports whether the document is the one served.
func (d *OpenAPIDocument) Active() bool {
	return d.IsActive != nil && *d.IsActive
}

// Checksum returns the hex SHA-256 of content.
func Checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ToolCatalog represents the tool_catalogs table structure: the generated
// artifact of one document.
type ToolCatalog struct {
	ID          int        `json:"id" db:"id"`
	DocumentID  int        `json:"document_id" db:"document_id"`
	Artifact    string     `json:"artifact" db:"artifact"`
	ToolCount   int        `json:"tool_count" db:"tool_count"`
	GeneratedAt *time.Time `json:"generated_at,omitempty" db:"generated_at"`
}

// TableName returns the table name for the ToolCatalog model
func (ToolCatalog) TableName() string {
	return "tool_catalogs"
}
