package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("prompt", "plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)

	out, err = RenderTemplate("prompt", "Find {{ .target | upper }} on {{ default \"localhost\" .host }}.{{ .missing }}", map[string]any{
		"target": "flags",
	})
	require.NoError(t, err)
	assert.Equal(t, "Find FLAGS on localhost.", out)

	_, err = RenderTemplate("prompt", "{{ .broken", nil)
	assert.ErrorContains(t, err, "parse prompt template")
}
