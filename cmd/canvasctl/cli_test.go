package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/matthewbaird/canvas/internal/types"
)

const sampleDoc = `{
	"id": "sample",
	"name": "Sample",
	"components": [
		{"id": "chart", "kind": "bar-chart", "style": {"left": 10.6, "top": 4},
		 "data": {"type": "static", "requestOptions": {"data": [1, 2]}},
		 "script": {"type": "js", "code": "function afterCallback(d) { return d; }"}},
		{"id": "box", "kind": "group", "displayed": false, "children": [
			{"id": "label", "kind": "text", "name": "Title"}
		]}
	]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	c := newCLI()
	var out bytes.Buffer
	c.root.SetOut(&out)
	c.root.SetErr(&out)
	c.root.SetArgs(args)
	err := c.root.Execute()
	return out.String(), err
}

func TestValidate(t *testing.T) {
	out, err := run(t, "validate", writeFile(t, "doc.json", sampleDoc))
	require.NoError(t, err)
	assert.Contains(t, out, "ok:")
	assert.Contains(t, out, "(3 components)")

	bad := writeFile(t, "bad.json", `{"name":"x","components":[{"id":"a","kind":"nope"}]}`)
	_, err = run(t, "validate", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"nope"`)
}

func TestTree(t *testing.T) {
	out, err := run(t, "tree", writeFile(t, "doc.json", sampleDoc))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Sample", lines[0])
	assert.Equal(t, `  bar-chart chart "bar-chart" at 11,4 400x300 data=static script`, lines[1])
	assert.True(t, strings.HasSuffix(lines[2], "hidden"))
	assert.True(t, strings.HasPrefix(lines[3], `    text label "Title"`))
}

func TestExport_YAMLRoundTrip(t *testing.T) {
	out, err := run(t, "export", "--format", "yaml", writeFile(t, "doc.json", sampleDoc))
	require.NoError(t, err)

	var doc types.Document
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "sample", doc.ID)
	require.Len(t, doc.Components, 2)
	assert.Equal(t, 11, doc.Components[0].Style["left"])
	require.NotNil(t, doc.Components[0].Data)
	assert.Equal(t, "static", doc.Components[0].Data.Type)
	require.NotNil(t, doc.Components[1].Displayed)
	assert.False(t, *doc.Components[1].Displayed)

	// The YAML export validates as input again.
	yamlPath := writeFile(t, "doc.yaml", out)
	_, err = run(t, "validate", yamlPath)
	require.NoError(t, err)

	_, err = run(t, "export", "--format", "toml", yamlPath)
	assert.Error(t, err)
}

func TestKinds(t *testing.T) {
	out, err := run(t, "kinds")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "bar-chart")
	assert.Contains(t, out, "400x300")

	out, err = run(t, "kinds", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"propertySchema"`)
}

func TestImportAndList(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, "--data_dir", dir, "import", writeFile(t, "doc.json", sampleDoc))
	require.NoError(t, err)
	assert.Equal(t, "sample\n", out)

	out, err = run(t, "--data_dir", dir, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "sample")
	assert.Contains(t, out, "Sample")
}
