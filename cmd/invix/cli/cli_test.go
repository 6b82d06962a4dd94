package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/invix-erp/invix/internal/app"
)

func memoryConfig(t *testing.T) *app.Config {
	return &app.Config{
		StorageDriver: app.StorageMemory,
		ArchiveMode:   "export",
		ArchiveSink:   app.SinkFile,
		ArchiveDir:    t.TempDir(),
		LockTTL:       time.Second,
	}
}

func TestRunRejectsUnknownCommands(t *testing.T) {
	cfg := memoryConfig(t)
	var out bytes.Buffer
	require.ErrorIs(t, Run(context.Background(), cfg, nil, nil, &out), ErrUsage)
	require.ErrorIs(t, Run(context.Background(), cfg, nil, []string{"rebuild"}, &out), ErrUsage)
	require.ErrorIs(t, Run(context.Background(), cfg, nil, []string{"archive", "-tenant", "T1"}, &out), ErrUsage)
	require.Error(t, Run(context.Background(), cfg, nil, []string{"jobs", "stats"}, &out))
}

func TestEnsurePeriodAndArchive(t *testing.T) {
	cfg := memoryConfig(t)
	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), cfg, nil, []string{"ensure-period", "-tenant", "T1"}, &out))
	var ensured struct {
		Created bool `json:"created"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &ensured))
	require.True(t, ensured.Created)

	// each run builds fresh in-memory services, so nothing is left to archive
	out.Reset()
	require.NoError(t, Run(context.Background(), cfg, nil, []string{"archive", "-tenant", "T1", "-year", "2024"}, &out))
	require.Contains(t, out.String(), `"already_archived": true`)
}
