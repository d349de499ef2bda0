package schema

import (
	"encoding/json"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParse_Kinds(t *testing.T) {
	cases := map[string]Kind{
		`true`:                            KindBool,
		`{"$ref":"#/a"}`:                  KindRef,
		`{"type":"object"}`:               KindObject,
		`{"properties":{}}`:               KindObject,
		`{"type":"array"}`:                KindArray,
		`{"items":{"type":"string"}}`:     KindArray,
		`{"oneOf":[{"type":"string"}]}`:   KindComposite,
		`{"type":"string","minLength":1}`: KindPrimitive,
		`{}`:                              KindPrimitive,
	}
	for src, want := range cases {
		n, err := Parse([]byte(src))
		require.NoError(t, err, src)
		assert.Equal(t, want, n.Kind, src)
	}
}

func TestParse_RejectsNonSchema(t *testing.T) {
	_, err := Parse([]byte(`"string"`))
	assert.Error(t, err)
	_, err = Parse([]byte(`{"properties":{"a":3}}`))
	assert.Error(t, err)
}

func TestNode_JSONRoundTripKeepsOrder(t *testing.T) {
	src := `{"type":"object","description":"d","enum":[1,2],"x-vendor":{"b":1},"properties":{"zeta":{"type":"string"},"alpha":{"type":"integer","minimum":1.5}},"required":["zeta"]}`
	n := mustParse(t, src)

	out, err := json.Marshal(n)
	require.NoError(t, err)
	assert.Equal(t, src, string(out))
	assert.Equal(t, []string{"zeta", "alpha"}, n.Properties.Keys())
}

func TestNode_YAMLRoundTrip(t *testing.T) {
	n := mustParse(t, `{"type":"object","properties":{"b":{"type":"string","enum":["true","x"]},"a":{"type":["integer","null"]}},"required":["b"]}`)

	data, err := yaml.Marshal(n)
	require.NoError(t, err)

	var back Node
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, []string{"b", "a"}, back.Properties.Keys())

	a, _ := back.Properties.Get("a")
	assert.True(t, a.TypeList)
	b, _ := back.Properties.Get("b")
	enum, ok := b.Keyword("enum")
	require.True(t, ok)
	assert.Equal(t, []any{"true", "x"}, enum)
}

func TestNode_RemoveProperty(t *testing.T) {
	n := mustParse(t, `{"type":"object","properties":{"a":{},"X-Trace-Id":{}},"required":["X-Trace-Id"]}`)
	n.RemoveProperty("X-Trace-Id")

	assert.Equal(t, []string{"a"}, n.Properties.Keys())
	assert.Nil(t, n.Required)
}

func TestFromOpenAPI_InlinesResolvedRefs(t *testing.T) {
	spec := []byte(`
openapi: 3.0.3
info: {title: t, version: "1"}
paths: {}
components:
  schemas:
    Account:
      type: object
      required: [name]
      properties:
        name: {type: string, example: Checking}
        currency: {$ref: '#/components/schemas/Currency'}
        parent: {$ref: '#/components/schemas/Account'}
    Currency:
      type: string
      format: iso4217
`)
	doc, err := openapi3.NewLoader().LoadFromData(spec)
	require.NoError(t, err)

	n, err := FromOpenAPI(doc.Components.Schemas["Account"])
	require.NoError(t, err)
	assert.Equal(t, KindObject, n.Kind)
	assert.Equal(t, []string{"currency", "name", "parent"}, n.Properties.Keys())
	assert.Equal(t, []string{"name"}, n.Required)

	currency, _ := n.Properties.Get("currency")
	assert.Equal(t, KindPrimitive, currency.Kind)
	assert.Equal(t, "iso4217", currency.Format)

	parent, _ := n.Properties.Get("parent")
	assert.Equal(t, KindRef, parent.Kind)
	assert.Equal(t, "#/components/schemas/Account", parent.Ref)

	name, _ := n.Properties.Get("name")
	_, hasExample := name.Keyword("example")
	assert.True(t, hasExample)

	mapped := NewMapper(nil).Map(n)
	out, err := json.Marshal(mapped)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "object",
		"properties": {
			"currency": {"type": "string"},
			"name": {"type": "string"},
			"parent": {"type": "object", "description": "Reference to #/components/schemas/Account"}
		},
		"required": ["name"]
	}`, string(out))
}

func TestFromOpenAPIOrdered_KeepsDeclaredOrder(t *testing.T) {
	doc, err := openapi3.NewLoader().LoadFromData([]byte(`
openapi: 3.0.3
info: {title: t, version: "1"}
paths: {}
components:
  schemas:
    Bill:
      type: object
      properties:
        name: {type: string}
        amount_min: {type: string}
        amount_max: {type: string}
        date: {type: string}
`))
	require.NoError(t, err)

	order := make(PropertyOrder)
	order.Record([]string{"name", "amount_min", "amount_max", "date"})

	n, err := FromOpenAPIOrdered(doc.Components.Schemas["Bill"], order)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "amount_min", "amount_max", "date"}, n.Properties.Keys())

	n, err = FromOpenAPI(doc.Components.Schemas["Bill"])
	require.NoError(t, err)
	assert.Equal(t, []string{"amount_max", "amount_min", "date", "name"}, n.Properties.Keys())
}

func TestPropertyOrder(t *testing.T) {
	order := make(PropertyOrder)
	order.Record([]string{"b", "a"})
	order.Record([]string{"a", "b"})
	order.Record(nil)

	assert.Equal(t, []string{"b", "a"}, order.Sort([]string{"a", "b"}))
	assert.Equal(t, []string{"c", "d"}, order.Sort([]string{"d", "c"}))

	var none PropertyOrder
	assert.Equal(t, []string{"a", "b"}, none.Sort([]string{"b", "a"}))
}

func TestFromOpenAPI_UnresolvedRef(t *testing.T) {
	n, err := FromOpenAPI(&openapi3.SchemaRef{Ref: "#/components/schemas/Missing"})
	require.NoError(t, err)
	assert.Equal(t, KindRef, n.Kind)

	n, err = FromOpenAPI(nil)
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestFromRaw(t *testing.T) {
	n, err := FromRaw(map[string]any{
		"type":       "object",
		"properties": map[string]any{"b": map[string]any{"type": "string"}, "a": true},
	})
	require.NoError(t, err)
	assert.Equal(t, KindObject, n.Kind)
	assert.Equal(t, []string{"a", "b"}, n.Properties.Keys())

	a, _ := n.Properties.Get("a")
	assert.Equal(t, KindBool, a.Kind)

	b, err := FromRaw(false)
	require.NoError(t, err)
	assert.Equal(t, KindBool, b.Kind)
	assert.False(t, b.Bool)
}
