// internal/model/json_test.go
package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentScanAndGetString(t *testing.T) {
	var d Document
	require.NoError(t, d.Scan([]byte(`{"name":"Alice","age":31,"ratio":2.5,"vip":true,"note":null}`)))

	got, ok := d.GetString("name")
	assert.True(t, ok)
	assert.Equal(t, "Alice", got)

	got, ok = d.GetString("age")
	assert.True(t, ok)
	assert.Equal(t, "31", got)

	got, ok = d.GetString("ratio")
	assert.True(t, ok)
	assert.Equal(t, "2.5", got)

	got, ok = d.GetString("vip")
	assert.True(t, ok)
	assert.Equal(t, "true", got)

	_, ok = d.GetString("note")
	assert.False(t, ok)
	_, ok = d.GetString("absent")
	assert.False(t, ok)
}

func TestDocumentMerge(t *testing.T) {
	base := Document{"a": "1", "b": "2"}
	merged := base.Merge(Document{"b": "override", "c": "3"})

	assert.Equal(t, Document{"a": "1", "b": "override", "c": "3"}, merged)
	// Merge does not mutate the receiver.
	assert.Equal(t, Document{"a": "1", "b": "2"}, base)
}

func TestDocumentNilValue(t *testing.T) {
	var d Document
	v, err := d.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, d.Scan(nil))
	assert.Nil(t, d)
}
