package openapi2mcp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ubermorgenland/firefly-iii-mcp/pkg/auth"
)

func fixtureCatalog(t *testing.T) *Catalog {
	t.Helper()
	doc, order := loadFixture(t, fireflyFixture)
	c, err := BuildCatalog(doc, order, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestCatalog_Lookup(t *testing.T) {
	c := fixtureCatalog(t)

	def, ok := c.Lookup("store_transaction")
	require.True(t, ok)
	assert.Equal(t, "post", def.Method)

	_, ok = c.Lookup("Store_Transaction")
	assert.False(t, ok, "lookup is case-sensitive")
	_, ok = c.Lookup("missing")
	assert.False(t, ok)
}

func TestCatalog_LookupReturnsCopy(t *testing.T) {
	c := fixtureCatalog(t)
	def, _ := c.Lookup("store_transaction")
	def.Method = "delete"

	again, _ := c.Lookup("store_transaction")
	assert.Equal(t, "post", again.Method)
}

func TestCatalog_Filter(t *testing.T) {
	c := fixtureCatalog(t)

	assert.Len(t, c.Filter(nil), c.Len(), "no tags means no filter")
	assert.Len(t, c.Filter([]string{}), c.Len())

	accounts := c.Filter([]string{"accounts"})
	require.Len(t, accounts, 2)
	assert.Equal(t, "get_v1_accounts_by_id", accounts[0].Name)
	assert.Equal(t, "update_account", accounts[1].Name)

	assert.Len(t, c.Filter([]string{"accounts", "transactions"}), 4)
	assert.Empty(t, c.Filter([]string{"webhooks"}))
}

func TestCatalog_Schemes(t *testing.T) {
	c := fixtureCatalog(t)
	schemes := c.Schemes()
	assert.Equal(t, auth.APIKeyScheme{Name: "X-Api-Key", In: "header"}, schemes["api_key"])
	assert.IsType(t, auth.OAuth2Scheme{}, schemes["firefly_iii_auth"])
}

func TestNewCatalog_RejectsDuplicates(t *testing.T) {
	_, err := NewCatalog([]ToolDefinition{{Name: "a"}, {Name: "a"}}, nil)
	assert.Error(t, err)
}

func TestArtifact_JSONRoundTrip(t *testing.T) {
	c := fixtureCatalog(t)
	var buf bytes.Buffer
	require.NoError(t, c.Artifact("Firefly III API", "6.1.0").WriteJSON(&buf))

	a, err := LoadArtifact(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "Firefly III API", a.Title)
	assertSameCatalog(t, c, a)
}

func TestArtifact_YAMLRoundTrip(t *testing.T) {
	c := fixtureCatalog(t)
	var buf bytes.Buffer
	require.NoError(t, c.Artifact("Firefly III API", "6.1.0").WriteYAML(&buf))

	a, err := LoadArtifact(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "6.1.0", a.Version)
	assertSameCatalog(t, c, a)
}

func assertSameCatalog(t *testing.T, want *Catalog, a Artifact) {
	t.Helper()
	got, err := a.Catalog()
	require.NoError(t, err)
	require.Equal(t, want.Len(), got.Len())
	assert.Equal(t, want.Schemes(), got.Schemes())

	for i, w := range want.Tools() {
		g := got.Tools()[i]
		assert.Equal(t, w.Name, g.Name)
		assert.Equal(t, w.PathTemplate, g.PathTemplate)
		assert.ElementsMatch(t, w.ExecutionParameters, g.ExecutionParameters)
		assert.Equal(t, w.RequestBodyContentType, g.RequestBodyContentType)
		assert.Equal(t, w.InputSchema.Properties.Keys(), g.InputSchema.Properties.Keys())
		assert.Equal(t, len(w.SecurityRequirements), len(g.SecurityRequirements))
	}
}

func TestLoadArtifact_Invalid(t *testing.T) {
	_, err := LoadArtifact([]byte("{not json"))
	assert.Error(t, err)
	_, err = LoadArtifact([]byte("tools: [unclosed"))
	assert.Error(t, err)
}
