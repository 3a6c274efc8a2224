package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func writeViews(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Views", "_ViewStart.cshtml"), `@{ Layout = "_Layout"; }`)
	writeFile(t, filepath.Join(dir, "Views", "Shared", "_Layout.cshtml"), `[@RenderBody()]`)
	writeFile(t, filepath.Join(dir, "Views", "Home", "Index.cshtml"), `Hello @Model.Name`)
	return dir
}

func TestRun_Help(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(&out, []string{"-h"}))
	assert.Contains(t, out.String(), "Commands:")

	out.Reset()
	require.NoError(t, run(&out, nil))
	assert.Contains(t, out.String(), "precompile")
}

func TestRun_UnknownCommand(t *testing.T) {
	err := run(&bytes.Buffer{}, []string{"frobnicate"})
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 2, exitErr.Code)
}

func TestRun_InvalidLogLevel(t *testing.T) {
	err := run(&bytes.Buffer{}, []string{"-log-level", "loud", "gen"})
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 2, exitErr.Code)
}

func TestRun_Gen(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "page.cshtml")
	writeFile(t, in, `Hi @Model.Name`)

	var out bytes.Buffer
	require.NoError(t, run(&out, []string{"gen", "-in", in}))
	assert.Contains(t, out.String(), "razor:class")
	assert.Contains(t, out.String(), "{{write .Name}}")

	dst := filepath.Join(dir, "page.tmpl")
	out.Reset()
	require.NoError(t, run(&out, []string{"gen", "-in", in, "-out", dst, "-base", "HtmlTemplateBase"}))
	assert.Empty(t, out.String())
	raw, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "razor:base HtmlTemplateBase")
}

func TestRun_GenRequiresInput(t *testing.T) {
	err := run(&bytes.Buffer{}, []string{"gen"})
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 2, exitErr.Code)
}

func TestRun_Render(t *testing.T) {
	dir := writeViews(t)
	model := filepath.Join(t.TempDir(), "model.yaml")
	writeFile(t, model, "Name: Ada\n")

	var out bytes.Buffer
	require.NoError(t, run(&out, []string{"render", "-views", dir, "-view", "Home/Index", "-model", model}))
	assert.Equal(t, "[Hello Ada]", out.String())
}

func TestRun_PrecompileThenRender(t *testing.T) {
	dir := writeViews(t)
	db := filepath.Join(t.TempDir(), "views.db")

	var out bytes.Buffer
	require.NoError(t, run(&out, []string{"precompile", "-views", dir, "-db", db}))
	assert.Equal(t, "precompiled 3 views\n", out.String())

	model := filepath.Join(t.TempDir(), "model.json")
	writeFile(t, model, `{"Name": "Grace"}`)
	out.Reset()
	require.NoError(t, run(&out, []string{"render", "-views", dir, "-db", db, "-view", "Home/Index", "-model", model}))
	assert.Equal(t, "[Hello Grace]", out.String())
}

func TestRun_Config(t *testing.T) {
	dir := writeViews(t)
	cfg := filepath.Join(t.TempDir(), "razor.yaml")
	writeFile(t, cfg, "default: site\nservices:\n  site:\n    base_type: HtmlTemplateBase\n")
	model := filepath.Join(t.TempDir(), "model.yaml")
	writeFile(t, model, "Name: <b>\n")

	var out bytes.Buffer
	require.NoError(t, run(&out, []string{"-config", cfg, "render", "-views", dir, "-view", "Home/Index", "-model", model}))
	assert.Equal(t, "[Hello &lt;b&gt;]", out.String())

	err := run(&out, []string{"-config", cfg, "-service", "mail", "render", "-view", "x"})
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
}
