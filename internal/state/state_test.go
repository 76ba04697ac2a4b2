package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamcutter/addonforge/internal/domain"
)

func TestJournalRecordsStages(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "state", "state.db"))
	require.NoError(t, err)
	defer s.Close()

	assert.Error(t, s.Begin(domain.StageBootstrap, ""))

	runID, err := s.StartRun()
	require.NoError(t, err)
	assert.Equal(t, runID, s.RunID())

	require.NoError(t, s.Begin(domain.StageBootstrap, ""))
	require.NoError(t, s.Finish(domain.StageBootstrap, domain.StatusSkipped, "already installed"))
	require.NoError(t, s.Begin(domain.StageInstall, ""))
	require.NoError(t, s.Finish(domain.StageInstall, domain.StatusDone, ""))
	require.NoError(t, s.EndRun(domain.StatusDone))

	stages, err := s.Stages(runID)
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Equal(t, domain.StageBootstrap, stages[0].Stage)
	assert.Equal(t, domain.StatusSkipped, stages[0].Status)
	assert.Equal(t, "already installed", stages[0].Detail)
	assert.Equal(t, domain.StatusDone, stages[1].Status)
	assert.False(t, stages[1].FinishedAt.IsZero())

	history, err := s.History(1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.StageInstall, history[0].Stage)
}

func TestRecoverInterruptedStage(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")
	scratch := filepath.Join(dir, ".ffmpeg_staging")
	require.NoError(t, os.MkdirAll(filepath.Join(scratch, "ffmpeg-7.1"), 0755))

	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	runID, err := s.StartRun()
	require.NoError(t, err)
	require.NoError(t, s.Begin(domain.StageExtract, scratch))
	require.NoError(t, s.Close())

	s, err = NewSQLite(dbPath)
	require.NoError(t, err)
	defer s.Close()

	assert.NoDirExists(t, scratch)

	stages, err := s.Stages(runID)
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.Equal(t, domain.StatusFailed, stages[0].Status)
	assert.Equal(t, "interrupted", stages[0].Detail)
}

func TestReportWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "addon_src", "prepare.json")
	w := NewReportWriter(path)

	loaded, err := w.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)

	report := &domain.Report{
		RunID:       "run-1",
		Triplet:     "x64-linux",
		Files:       []string{"binding.c", "config.h"},
		CompletedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, w.Save(report))

	loaded, err = w.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, report.Files, loaded.Files)
	assert.True(t, report.CompletedAt.Equal(loaded.CompletedAt))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
