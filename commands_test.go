package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmshv/reader/internal"
)

func TestReportPath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("reports", "http-127-0-0-1-8001-sync.json"),
		reportPath("reports", "http://127.0.0.1:8001", "sync"),
	)
}

func TestReportMirrorsToDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	res := internal.ReconcileResult{BaseUrl: "http://rss.local", FeedCount: 2, Deleted: 1}

	var out bytes.Buffer
	require.NoError(t, report(&out, dir, res.BaseUrl, "reconcile", res))

	data, err := os.ReadFile(reportPath(dir, res.BaseUrl, "reconcile"))
	require.NoError(t, err)
	var mirrored internal.ReconcileResult
	require.NoError(t, json.Unmarshal(data, &mirrored))
	assert.Equal(t, res, mirrored)
	assert.JSONEq(t, string(data), out.String())
}

func TestReportWithoutDir(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, report(&out, "", "http://rss.local", "sync", internal.SyncResult{FeedCount: 1}))
	assert.Contains(t, out.String(), `"feed_count": 1`)
}
