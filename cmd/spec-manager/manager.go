package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ubermorgenland/firefly-iii-mcp/pkg/loader"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/memory"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/models"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/openapi2mcp"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/repository"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/server"
)

// documentStore is the repository surface the manager drives.
type documentStore interface {
	Create(ctx context.Context, doc *models.OpenAPIDocument) (*models.OpenAPIDocument, error)
	GetByID(ctx context.Context, id int) (*models.OpenAPIDocument, error)
	GetByName(ctx context.Context, name string) (*models.OpenAPIDocument, error)
	GetActive(ctx context.Context) (*models.OpenAPIDocument, error)
	List(ctx context.Context) ([]*models.OpenAPIDocument, error)
	Update(ctx context.Context, doc *models.OpenAPIDocument) (*models.OpenAPIDocument, error)
	Delete(ctx context.Context, id int) error
	Activate(ctx context.Context, id int) error
	Deactivate(ctx context.Context, id int) error
	SaveCatalog(ctx context.Context, c *models.ToolCatalog) (*models.ToolCatalog, error)
}

// manager imports documents into the store and keeps their catalogs current.
type manager struct {
	store   documentStore
	loader  *loader.Loader
	buffers *memory.BufferPool
	logger  *zap.Logger
}

func newManager(store documentStore, logger *zap.Logger) *manager {
	return &manager{
		store:   store,
		loader:  loader.New(logger),
		buffers: memory.NewBufferPool(),
		logger:  logger,
	}
}

// SeedEntry is one document of a seed file.
type SeedEntry struct {
	File   string `yaml:"file"`
	Name   string `yaml:"name"`
	Active bool   `yaml:"active"`
}

// SeedConfig lists the documents to import.
type SeedConfig struct {
	Documents []SeedEntry `yaml:"documents"`
}

func isDocumentFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

func formatOf(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return "json"
	}
	return "yaml"
}

func nameOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// resolve finds a document by numeric id or by name.
func (m *manager) resolve(ctx context.Context, ref string) (*models.OpenAPIDocument, error) {
	if id, err := strconv.Atoi(ref); err == nil {
		return m.store.GetByID(ctx, id)
	}
	return m.store.GetByName(ctx, ref)
}

// importFile stores the document at path under name, replacing the content
// of an existing document with that name, and regenerates its catalog.
func (m *manager) importFile(ctx context.Context, path, name string, activate bool) (*models.OpenAPIDocument, error) {
	importID := uuid.New().String()
	logger := m.logger.With(zap.String("import_id", importID), zap.String("file", path))

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeValidation, "failed to read document file")
	}
	if name == "" {
		name = nameOf(path)
	}

	doc, order, err := m.loader.Parse(ctx, content)
	if err != nil {
		return nil, err
	}

	stored := models.NewOpenAPIDocument(name, string(content), formatOf(path))
	if doc.Info != nil {
		stored.Title, stored.Version = &doc.Info.Title, &doc.Info.Version
	}

	existing, err := m.store.GetByName(ctx, name)
	switch {
	case err == nil:
		if existing.Checksum == stored.Checksum {
			logger.Info("document unchanged", zap.String("name", name), zap.Int("id", existing.ID))
			stored = existing
			break
		}
		stored.ID = existing.ID
		stored.IsActive = existing.IsActive
		if stored, err = m.store.Update(ctx, stored); err != nil {
			return nil, server.Wrap(err, server.ErrorTypeDatabase, "failed to update document")
		}
		logger.Info("document updated", zap.String("name", name), zap.Int("id", stored.ID))
	case errors.Is(err, repository.ErrNotFound):
		if stored, err = m.store.Create(ctx, stored); err != nil {
			return nil, server.Wrap(err, server.ErrorTypeDatabase, "failed to create document")
		}
		logger.Info("document imported", zap.String("name", name), zap.Int("id", stored.ID))
	default:
		return nil, server.Wrap(err, server.ErrorTypeDatabase, "failed to look up document")
	}

	if _, err := m.saveCatalog(ctx, stored.ID, doc, order); err != nil {
		return nil, err
	}

	if activate && !stored.Active() {
		if err := m.store.Activate(ctx, stored.ID); err != nil {
			return nil, server.Wrap(err, server.ErrorTypeDatabase, "failed to activate document")
		}
		active := true
		stored.IsActive = &active
		logger.Info("document activated", zap.Int("id", stored.ID))
	}
	return stored, nil
}

// importDir imports every YAML or JSON file in dir, named after the file.
// Failures are logged and skipped.
func (m *manager) importDir(ctx context.Context, dir string) ([]*models.OpenAPIDocument, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeValidation, "failed to read directory")
	}
	var imported []*models.OpenAPIDocument
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() || !isDocumentFile(path) {
			continue
		}
		doc, err := m.importFile(ctx, path, "", false)
		if err != nil {
			m.logger.Warn("failed to import document", zap.String("file", path), zap.Error(err))
			continue
		}
		imported = append(imported, doc)
	}
	return imported, nil
}

// seed imports the documents listed in a YAML seed file. Relative paths are
// resolved against the seed file's directory.
func (m *manager) seed(ctx context.Context, path string) ([]*models.OpenAPIDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeValidation, "failed to read seed file")
	}
	var cfg SeedConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, server.Wrap(err, server.ErrorTypeValidation, "failed to parse seed file")
	}

	base := filepath.Dir(path)
	var imported []*models.OpenAPIDocument
	for _, entry := range cfg.Documents {
		file := entry.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(base, file)
		}
		doc, err := m.importFile(ctx, file, entry.Name, entry.Active)
		if err != nil {
			return imported, fmt.Errorf("%s: %w", entry.File, err)
		}
		imported = append(imported, doc)
	}
	return imported, nil
}

// generate rebuilds and stores the catalog of a stored document.
func (m *manager) generate(ctx context.Context, stored *models.OpenAPIDocument) (*models.ToolCatalog, error) {
	doc, order, err := m.loader.Parse(ctx, []byte(stored.Content))
	if err != nil {
		return nil, err
	}
	return m.saveCatalog(ctx, stored.ID, doc, order)
}

func (m *manager) saveCatalog(ctx context.Context, documentID int, doc *openapi3.T, order *openapi2mcp.DocumentOrder) (*models.ToolCatalog, error) {
	catalog, err := openapi2mcp.BuildCatalog(doc, order, m.logger)
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeInternal, "failed to build tool catalog")
	}
	var title, version string
	if doc.Info != nil {
		title, version = doc.Info.Title, doc.Info.Version
	}

	buf := m.buffers.Get()
	defer m.buffers.Put(buf)
	if err := catalog.Artifact(title, version).WriteJSON(buf); err != nil {
		return nil, server.Wrap(err, server.ErrorTypeInternal, "failed to encode tool catalog")
	}
	saved, err := m.store.SaveCatalog(ctx, &models.ToolCatalog{
		DocumentID: documentID,
		Artifact:   buf.String(),
		ToolCount:  catalog.Len(),
	})
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeDatabase, "failed to store tool catalog")
	}
	m.logger.Info("tool catalog stored", zap.Int("document_id", documentID), zap.Int("tools", catalog.Len()))
	return saved, nil
}
