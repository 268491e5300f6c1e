package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cidadeplus/backend/pkg/storage"
)

func run(args ...string) (string, error) {
	var out bytes.Buffer
	root := newRootCmd(&app{out: &out})
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRoot_ListsCommands(t *testing.T) {
	out, err := run("--help")
	require.NoError(t, err)
	for _, name := range []string{"cities", "resolve", "incidents", "cache"} {
		assert.Contains(t, out, name)
	}
}

func TestIncidents_ArgumentsValidatedBeforeConnecting(t *testing.T) {
	_, err := run("incidents", "summary", "--minutes", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--minutes")

	_, err = run("incidents", "ack", "not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid incident id")

	_, err = run("incidents", "ack")
	assert.Error(t, err)

	_, err = run("incidents", "archives", "--url", "--url-minutes=-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--url-minutes")
}

type linkFunc func(key string) (string, error)

func (f linkFunc) PresignedDownloadURL(_ context.Context, key string) (string, error) { return f(key) }

func TestArchiveRows(t *testing.T) {
	modified := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	objects := []storage.Object{
		{Key: "reports/incidents/2026/10/18/a.json", Size: 120, LastModified: modified},
		{Key: "reports/incidents/2026/10/18/b.json", Size: 80, LastModified: modified},
	}
	sign := linkFunc(func(key string) (string, error) { return "https://signed.example/" + key + "?sig=1", nil })

	rows, err := archiveRows(context.Background(), objects, sign)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "https://signed.example/reports/incidents/2026/10/18/b.json?sig=1", rows[1].URL)

	var out bytes.Buffer
	require.NoError(t, writeArchives(&out, rows, true))
	assert.Contains(t, out.String(), "URL")
	assert.Contains(t, out.String(), "https://signed.example/reports/incidents/2026/10/18/a.json?sig=1")

	plain, err := archiveRows(context.Background(), objects, nil)
	require.NoError(t, err)
	assert.Empty(t, plain[0].URL)
	out.Reset()
	require.NoError(t, writeArchives(&out, plain, false))
	assert.NotContains(t, out.String(), "URL")
	assert.Contains(t, out.String(), "2026-10-18T12:00:00Z")

	_, err = archiveRows(context.Background(), objects, linkFunc(func(string) (string, error) { return "", errors.New("denied") }))
	assert.ErrorContains(t, err, "denied")
}
