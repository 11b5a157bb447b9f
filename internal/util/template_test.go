package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptTemplate(t *testing.T) {
	p, err := ParsePromptTemplate("t", `{{upper .Name}} / {{default "n/a" .Role}}`)
	require.NoError(t, err)

	out, err := p.Render(map[string]any{"Name": "sam"})
	require.NoError(t, err)
	assert.Equal(t, "SAM / n/a", out)
}

func TestPromptTemplate_PlainText(t *testing.T) {
	p, err := ParsePromptTemplate("t", "no markers here")
	require.NoError(t, err)

	out, err := p.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, "no markers here", out)
}

func TestPromptTemplate_ParseError(t *testing.T) {
	_, err := ParsePromptTemplate("broken", "{{.Context")
	assert.ErrorContains(t, err, "parse template broken")
}
