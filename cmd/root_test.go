package cmd

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	assetsFile   = filepath.Join("..", "ingest", "testdata", "assets.json")
	findingsFile = filepath.Join("..", "ingest", "testdata", "findings.json")
	wizardFile   = filepath.Join("..", "ingest", "testdata", "wizard.json")
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestScoreCmd(t *testing.T) {
	out, err := execute(t, "score", "--cvss", "9.8", "--epss", "0.89", "--kev")
	require.NoError(t, err)
	assert.Contains(t, out, "Priority score: 95.90")
	assert.Contains(t, out, "Risk level: CRITICAL")
	assert.Contains(t, out, "Severity from CVSS: CRITICAL")
}

func TestViewCmd(t *testing.T) {
	out, err := execute(t, "view", "--assets", assetsFile, "--findings", findingsFile, "--page-size", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 3 vulnerabilit(ies), page 1 of 2")
	assert.Contains(t, out, "88.00")
	assert.Contains(t, out, "Commons Text")

	out, err = execute(t, "view", "--assets", assetsFile, "--findings", findingsFile, "--page", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "past the last page")

	_, err = execute(t, "view", "--assets", assetsFile, "--findings", findingsFile, "--sort", "severity")
	require.Error(t, err)

	_, err = execute(t, "view", "--assets", assetsFile)
	require.Error(t, err, "findings flag is required")
}

func TestSummaryCmd(t *testing.T) {
	out, err := execute(t, "summary", "--assets", assetsFile, "--findings", findingsFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Total: 3")
	assert.Contains(t, out, "High: 1")
	assert.Contains(t, out, "Commons Text")
	assert.Contains(t, out, "Lodash")
	assert.Contains(t, out, "Assets: 3")
	assert.Contains(t, out, "High assets: 1")
}

func TestIngestDryRun(t *testing.T) {
	out, err := execute(t, "ingest", "--file", wizardFile, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "CVE-2024-21413")
	assert.Contains(t, out, "95.90")
	assert.Contains(t, out, "missing_id")
}

func TestIngestPostsToServer(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true,"message":"Findings stored","vulnerabilities":[{"id":"CVE-2024-21413"},{"id":"CVE-2024-0519"}]}`))
	}))
	defer srv.Close()

	out, err := execute(t, "ingest", "--file", wizardFile, "--server", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/findings", gotPath)
	assert.Contains(t, out, "Findings stored (2 vulnerabilit(ies))")
}

func TestIngestServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"message":"boom"}`))
	}))
	defer srv.Close()

	_, err := execute(t, "ingest", "--file", wizardFile, "--server", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")

	_, err = execute(t, "ingest", "--file", filepath.Join("testdata", "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file not found")
}
