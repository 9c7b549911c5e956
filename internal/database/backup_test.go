package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rentbook/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupService(t *testing.T) {
	tempDir := t.TempDir()
	storagePath := filepath.Join(tempDir, "backups")

	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(tempDir, "source.db"), &logger)
	require.NoError(t, err)
	defer db.Close()
	seedListing(t, db, "loft", "host", 100)

	cfg := config.BackupConfig{
		Enabled:       true,
		StoragePath:   storagePath,
		RetentionDays: 1,
	}
	s := NewBackupService(db, cfg, &logger)
	ctx := context.Background()

	t.Run("PerformBackup", func(t *testing.T) {
		path, err := s.PerformBackup(ctx)
		require.NoError(t, err)

		files, err := os.ReadDir(storagePath)
		require.NoError(t, err)
		assert.Len(t, files, 1)

		restored, err := NewDB(path, &logger)
		require.NoError(t, err)
		defer restored.Close()
		l, err := restored.GetListing(ctx, "loft")
		require.NoError(t, err)
		assert.Equal(t, int64(100), l.Price)
	})

	t.Run("CleanupOldBackups", func(t *testing.T) {
		oldFile := filepath.Join(storagePath, backupPrefix+"old.db")
		require.NoError(t, os.WriteFile(oldFile, []byte("old"), 0o644))
		foreign := filepath.Join(storagePath, "notes.txt")
		require.NoError(t, os.WriteFile(foreign, []byte("keep"), 0o644))

		oldTime := time.Now().AddDate(0, 0, -2)
		require.NoError(t, os.Chtimes(oldFile, oldTime, oldTime))
		require.NoError(t, os.Chtimes(foreign, oldTime, oldTime))

		assert.Equal(t, 1, s.CleanupOldBackups())

		_, err := os.Stat(oldFile)
		assert.True(t, os.IsNotExist(err))
		_, err = os.Stat(foreign)
		assert.NoError(t, err, "only backup files are rotated")
	})
}

func TestBackupService_InMemory(t *testing.T) {
	db := setupTestDB(t)
	seedListing(t, db, "loft", "host", 100)

	logger := zerolog.Nop()
	s := NewBackupService(db, config.BackupConfig{Enabled: true, StoragePath: t.TempDir()}, &logger)

	path, err := s.PerformBackup(context.Background())
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestBackupService_Loop(t *testing.T) {
	logger := zerolog.Nop()
	db := setupTestDB(t)
	storage := filepath.Join(t.TempDir(), "loop")
	s := NewBackupService(db, config.BackupConfig{Enabled: true, Schedule: "10ms", StoragePath: storage}, &logger)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	s.Start(ctx)

	files, _ := os.ReadDir(storage)
	assert.NotEmpty(t, files)
}

func TestBackupService_Disabled(_ *testing.T) {
	logger := zerolog.Nop()
	s := NewBackupService(nil, config.BackupConfig{Enabled: false}, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Start(ctx)
}

func TestBackupService_StorageIsFile(t *testing.T) {
	tmpFile, err := os.CreateTemp(t.TempDir(), "notadir")
	require.NoError(t, err)
	tmpFile.Close()

	logger := zerolog.Nop()
	bs := NewBackupService(setupTestDB(t), config.BackupConfig{Enabled: true, StoragePath: tmpFile.Name() + "/subdir"}, &logger)

	_, err = bs.PerformBackup(context.Background())
	assert.Error(t, err)
}

func TestBackupService_Interval(t *testing.T) {
	logger := zerolog.Nop()
	assert.Equal(t, 24*time.Hour, NewBackupService(nil, config.BackupConfig{}, &logger).interval())
	assert.Equal(t, 24*time.Hour, NewBackupService(nil, config.BackupConfig{Schedule: "daily"}, &logger).interval())
	assert.Equal(t, time.Hour, NewBackupService(nil, config.BackupConfig{Schedule: "1h"}, &logger).interval())
}
