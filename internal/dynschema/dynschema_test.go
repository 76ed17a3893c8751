package dynschema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/memdb/internal/value"
)

func TestFromDDL(t *testing.T) {
	ds, err := FromDDL("CREATE TABLE widgets (id TEXT NOT NULL, name TEXT NOT NULL, weight FLOAT)")
	require.NoError(t, err)
	require.Equal(t, "widgets", ds.TableName)
	require.Len(t, ds.Fields, 3)

	id, ok := ds.FieldByName("id")
	require.True(t, ok)
	require.False(t, id.Nullable)
	require.Equal(t, value.DTText, id.Type.Kind())

	weight, ok := ds.FieldByName("weight")
	require.True(t, ok)
	require.True(t, weight.Nullable)
	require.Equal(t, value.DTFloat, weight.Type.Kind())
}

func TestFromDDL_RejectsNonCreateTable(t *testing.T) {
	_, err := FromDDL("SELECT 1")
	require.Error(t, err)
}

func TestFromJSONSchema(t *testing.T) {
	raw := []byte(`{
		"type": "object",
		"properties": {
			"id": {"type": "string"},
			"name": {"type": "string"},
			"weight": {"type": "number"}
		},
		"required": ["id", "name"]
	}`)
	ds, err := FromJSONSchema("widgets", raw)
	require.NoError(t, err)
	require.Equal(t, "widgets", ds.TableName)
	require.Len(t, ds.Fields, 3)

	id, ok := ds.FieldByName("id")
	require.True(t, ok)
	require.False(t, id.Nullable)

	weight, ok := ds.FieldByName("weight")
	require.True(t, ok)
	require.True(t, weight.Nullable)
	require.Equal(t, value.DTFloat, weight.Type.Kind())
}

func TestFromJSONSchema_RejectsMalformed(t *testing.T) {
	_, err := FromJSONSchema("widgets", []byte(`{"type": "object", "properties": "not-an-object"}`))
	require.Error(t, err)
}

func TestFromJSONSchema_RejectsNonObjectRoot(t *testing.T) {
	_, err := FromJSONSchema("widgets", []byte(`{"type": "string"}`))
	require.Error(t, err)
}

func TestDynamicSchema_Validate(t *testing.T) {
	ds, err := FromDDL("CREATE TABLE widgets (id TEXT NOT NULL, nickname TEXT)")
	require.NoError(t, err)

	require.NoError(t, ds.Validate(map[string]value.Value{
		"id": value.NewText("w-1"),
	}))

	err = ds.Validate(map[string]value.Value{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "id")

	err = ds.Validate(map[string]value.Value{
		"id":      value.NewText("w-1"),
		"unknown": value.NewText("x"),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown")

	err = ds.Validate(map[string]value.Value{
		"id": value.NewInteger(1),
	})
	require.Error(t, err)
}

func TestDynamicSchema_ToSchema(t *testing.T) {
	ds, err := FromDDL("CREATE TABLE widgets (id TEXT NOT NULL, weight FLOAT)")
	require.NoError(t, err)

	schema := ds.ToSchema()
	require.Len(t, schema.Columns, 2)
	idx, ok := schema.FindColumnIndex("weight")
	require.True(t, ok)
	require.True(t, schema.Columns[idx].Nullable)
}
