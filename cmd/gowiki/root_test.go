package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/gowiki/internal/config"
	"github.com/JakeFAU/gowiki/internal/server"
)

func memoryEnv(t *testing.T) {
	t.Helper()
	t.Setenv("WIKI_DATABASE_DRIVER", config.DriverMemory)
	t.Setenv("WIKI_STORAGE_BACKEND", config.BackendMemory)
	t.Setenv("WIKI_LOGGING_LEVEL", "error")
}

func TestBackupCommandPrintsResult(t *testing.T) {
	memoryEnv(t)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"backup"})
	require.NoError(t, cmd.Execute())

	var res struct {
		URI   string `json:"uri"`
		Pages int    `json:"pages"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, 0, res.Pages)
	assert.Contains(t, res.URI, "memory://backups/")
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	memoryEnv(t)
	t.Setenv("WIKI_SERVER_PORT", "0")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"serve"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestBuildFailureIsReported(t *testing.T) {
	memoryEnv(t)
	orig := buildApp
	t.Cleanup(func() { buildApp = orig })
	buildApp = func(context.Context, config.Config, *zap.Logger) (*server.App, error) {
		return nil, errors.New("no database")
	}

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"backup"})
	err := cmd.Execute()
	require.ErrorContains(t, err, "no database")
}

func TestUnknownSubcommand(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"crawl"})
	require.Error(t, cmd.Execute())
}
