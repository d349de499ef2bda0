// Package loader fetches the OpenAPI document from a file, a URL or the
// catalog store and turns it into a tool catalog.
package loader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"

	"github.com/ubermorgenland/firefly-iii-mcp/pkg/memory"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/models"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/openapi2mcp"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/repository"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/server"
)

// DefaultFetchTimeout bounds fetching a document over HTTP.
const DefaultFetchTimeout = 30 * time.Second

// Store is the part of the document repository the loader needs.
type Store interface {
	GetActive(ctx context.Context) (*models.OpenAPIDocument, error)
	GetCatalog(ctx context.Context, documentID int) (*models.ToolCatalog, error)
	SaveCatalog(ctx context.Context, c *models.ToolCatalog) (*models.ToolCatalog, error)
}

// Document is a parsed OpenAPI document with its source metadata.
type Document struct {
	Doc      *openapi3.T
	Order    *openapi2mcp.DocumentOrder
	Content  []byte
	Source   string
	LoadedAt time.Time
}

// Title returns info.title, or "".
func (d *Document) Title() string {
	if d.Doc == nil || d.Doc.Info == nil {
		return ""
	}
	return d.Doc.Info.Title
}

// Version returns info.version, or "".
func (d *Document) Version() string {
	if d.Doc == nil || d.Doc.Info == nil {
		return ""
	}
	return d.Doc.Info.Version
}

// Source selects where the catalog comes from. The first non-empty field
// wins: a prebuilt artifact, then a document, then the store.
type Source struct {
	Catalog  string
	Spec     string
	Database bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient sets the client used for URL sources.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// WithStore enables the database source.
func WithStore(s Store) Option {
	return func(l *Loader) { l.store = s }
}

// Loader loads documents and builds catalogs.
type Loader struct {
	client  *http.Client
	store   Store
	buffers *memory.BufferPool
	logger  *zap.Logger
}

// New returns a Loader.
func New(logger *zap.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loader{
		client:  &http.Client{Timeout: DefaultFetchTimeout},
		buffers: memory.NewBufferPool(),
		logger:  logger.With(zap.String("component", "loader")),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Parse dereferences raw document bytes and recovers their key order.
// Validation problems are logged, not returned.
func (l *Loader) Parse(ctx context.Context, raw []byte) (*openapi3.T, *openapi2mcp.DocumentOrder, error) {
	ldr := openapi3.NewLoader()
	ldr.Context = ctx
	doc, err := ldr.LoadFromData(raw)
	if err != nil {
		return nil, nil, server.WrapWithContext(ctx, err, server.ErrorTypeValidation, "failed to parse OpenAPI document")
	}
	if err := doc.Validate(ctx); err != nil {
		l.logger.Warn("OpenAPI document failed validation, continuing", zap.Error(err))
	}
	order, err := openapi2mcp.OrderFromBytes(raw)
	if err != nil {
		return nil, nil, server.WrapWithContext(ctx, err, server.ErrorTypeValidation, "failed to parse OpenAPI document")
	}
	return doc, order, nil
}

// Fetch reads a document from a local path or an http(s) URL.
func (l *Loader) Fetch(ctx context.Context, source string) ([]byte, error) {
	if isURL(source) {
		return l.fetchURL(ctx, source)
	}
	content, err := os.ReadFile(source)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, server.NewErrorWithContext(ctx, server.ErrorTypeNotFound, "document file not found", source)
		}
		return nil, server.WrapWithContext(ctx, err, server.ErrorTypeInternal, "failed to read document file")
	}
	return content, nil
}

func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

func (l *Loader) fetchURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, server.WrapWithContext(ctx, err, server.ErrorTypeNetwork, "failed to create request")
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, server.WrapWithContext(ctx, err, server.ErrorTypeNetwork, "failed to fetch document from URL")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, server.NewErrorWithContext(ctx, server.ErrorTypeNetwork,
			fmt.Sprintf("HTTP %d when fetching document", resp.StatusCode), url)
	}
	content, err := l.buffers.ReadAll(resp.Body)
	if err != nil {
		return nil, server.WrapWithContext(ctx, err, server.ErrorTypeNetwork, "failed to read document body")
	}
	return content, nil
}

// Load fetches and parses one document.
func (l *Loader) Load(ctx context.Context, source string) (*Document, error) {
	content, err := l.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}
	doc, order, err := l.Parse(ctx, content)
	if err != nil {
		return nil, err
	}
	d := &Document{Doc: doc, Order: order, Content: content, Source: source, LoadedAt: time.Now()}
	l.logger.Info("document loaded",
		zap.String("source", source), zap.String("title", d.Title()), zap.String("version", d.Version()))
	return d, nil
}

// LoadCatalog builds the catalog for src.
func (l *Loader) LoadCatalog(ctx context.Context, src Source) (*openapi2mcp.Catalog, error) {
	switch {
	case src.Catalog != "":
		return l.loadArtifact(ctx, src.Catalog)
	case src.Spec != "":
		d, err := l.Load(ctx, src.Spec)
		if err != nil {
			return nil, err
		}
		return l.build(ctx, d)
	case src.Database:
		return l.loadFromStore(ctx)
	}
	return nil, server.NewErrorWithContext(ctx, server.ErrorTypeValidation, "no tool source configured", "")
}

func (l *Loader) loadArtifact(ctx context.Context, source string) (*openapi2mcp.Catalog, error) {
	content, err := l.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}
	c, err := catalogFromArtifact(content)
	if err != nil {
		return nil, server.WrapWithContext(ctx, err, server.ErrorTypeValidation, "failed to load tool catalog")
	}
	l.logger.Info("tool catalog loaded", zap.String("source", source), zap.Int("tools", c.Len()))
	return c, nil
}

func catalogFromArtifact(data []byte) (*openapi2mcp.Catalog, error) {
	a, err := openapi2mcp.LoadArtifact(data)
	if err != nil {
		return nil, err
	}
	return a.Catalog()
}

func (l *Loader) build(ctx context.Context, d *Document) (*openapi2mcp.Catalog, error) {
	c, err := openapi2mcp.BuildCatalog(d.Doc, d.Order, l.logger)
	if err != nil {
		return nil, server.WrapWithContext(ctx, err, server.ErrorTypeInternal, "failed to build tool catalog")
	}
	return c, nil
}

// loadFromStore serves the active document's stored artifact, generating and
// storing one when it is missing.
func (l *Loader) loadFromStore(ctx context.Context) (*openapi2mcp.Catalog, error) {
	if l.store == nil {
		return nil, server.NewErrorWithContext(ctx, server.ErrorTypeDatabase, "document store not initialized", "")
	}
	active, err := l.store.GetActive(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, server.WrapWithContext(ctx, err, server.ErrorTypeNotFound, "no active document in the store")
		}
		return nil, server.WrapWithContext(ctx, err, server.ErrorTypeDatabase, "failed to load active document")
	}
	logger := l.logger.With(zap.String("document", active.Name), zap.Int("document_id", active.ID))

	stored, err := l.store.GetCatalog(ctx, active.ID)
	switch {
	case err == nil:
		c, err := catalogFromArtifact([]byte(stored.Artifact))
		if err == nil {
			logger.Info("tool catalog loaded from store", zap.Int("tools", c.Len()))
			return c, nil
		}
		logger.Warn("stored tool catalog unreadable, regenerating", zap.Error(err))
	case !errors.Is(err, repository.ErrNotFound):
		return nil, server.WrapWithContext(ctx, err, server.ErrorTypeDatabase, "failed to load tool catalog")
	}

	doc, order, err := l.Parse(ctx, []byte(active.Content))
	if err != nil {
		return nil, err
	}
	c, err := l.build(ctx, &Document{Doc: doc, Order: order, Content: []byte(active.Content), Source: active.Name})
	if err != nil {
		return nil, err
	}

	if err := l.saveArtifact(ctx, active.ID, doc, c); err != nil {
		logger.Warn("failed to store generated tool catalog", zap.Error(err))
	} else {
		logger.Info("tool catalog generated and stored", zap.Int("tools", c.Len()))
	}
	return c, nil
}

func (l *Loader) saveArtifact(ctx context.Context, documentID int, doc *openapi3.T, c *openapi2mcp.Catalog) error {
	var title, version string
	if doc.Info != nil {
		title, version = doc.Info.Title, doc.Info.Version
	}
	buf := l.buffers.Get()
	defer l.buffers.Put(buf)
	if err := c.Artifact(title, version).WriteJSON(buf); err != nil {
		return err
	}
	_, err := l.store.SaveCatalog(ctx, &models.ToolCatalog{
		DocumentID: documentID,
		Artifact:   buf.String(),
		ToolCount:  c.Len(),
	})
	return err
}
