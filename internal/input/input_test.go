package input

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/arbiter/internal/model"
)

const yamlRequest = `
property_id: prop-1
address: 12 Palm Ave, Tampa FL
min_quorum: 3
batches:
  - source: Zillow
    fields:
      list_price: 440000
      pool: true
      hoa:
        monthly: 120
  - source: Stellar MLS
    fields:
      list_price: 450000
`

func TestParse_YAML(t *testing.T) {
	req, err := Parse([]byte(yamlRequest))
	require.NoError(t, err)

	assert.Equal(t, "prop-1", req.PropertyID)
	assert.Equal(t, 3, req.MinQuorum)
	assert.Equal(t, model.Property{ID: "prop-1", Address: "12 Palm Ave, Tampa FL"}, req.Property())
	require.Len(t, req.Batches, 2)
	assert.Equal(t, "Zillow", req.Batches[0].Source)
	assert.True(t, model.FromAny(req.Batches[0].Fields["list_price"]).Equal(model.Number(440000)))
	assert.True(t, model.FromAny(req.Batches[0].Fields["pool"]).Equal(model.Bool(true)))
	hoa := model.FromAny(req.Batches[0].Fields["hoa"])
	assert.Equal(t, model.KindObject, hoa.Kind())
}

func TestParse_JSON(t *testing.T) {
	req, err := Parse([]byte(`{"property_id":"prop-2","batches":[{"source":"GPT","fields":{"year_built":1998}}]}`))
	require.NoError(t, err)
	assert.Equal(t, "prop-2", req.PropertyID)
	require.Len(t, req.Batches, 1)
	assert.True(t, model.FromAny(req.Batches[0].Fields["year_built"]).Equal(model.Number(1998)))
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", "  \n"},
		{"malformed", "property_id: [x"},
		{"missing property id", "batches: []"},
		{"batch without source", "property_id: p\nbatches:\n  - fields: {a: 1}"},
		{"batch without fields", "property_id: p\nbatches:\n  - source: Zillow"},
		{"negative quorum", "property_id: p\nmin_quorum: -1"},
		{"unknown key", "property_id: p\nbogus: 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "req.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlRequest), 0o644))

	req, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "prop-1", req.PropertyID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
