package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type row struct {
	ID   uint
	Note string
}

func openDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&row{}))
	return db
}

func TestRunWritesReadableSnapshot(t *testing.T) {
	db := openDB(t, "backup_run")
	require.NoError(t, db.Create(&row{Note: "kept"}).Error)

	b := New(db, filepath.Join(t.TempDir(), "snaps"), 0, nil)
	path, err := b.Run(context.Background())
	require.NoError(t, err)

	snap, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	var got []row
	require.NoError(t, snap.Find(&got).Error)
	require.Len(t, got, 1)
	assert.Equal(t, "kept", got[0].Note)
}

func TestRunPrunesOldSnapshots(t *testing.T) {
	db := openDB(t, "backup_prune")
	dir := t.TempDir()
	b := New(db, dir, 2, nil)

	base := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		b.now = func() time.Time { return at }
		_, err := b.Run(context.Background())
		require.NoError(t, err)
	}

	snaps, err := b.Snapshots()
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, filepath.Join(dir, "riderguard_20260301_050000.db"), snaps[0])
	assert.Equal(t, filepath.Join(dir, "riderguard_20260301_060000.db"), snaps[1])
}

func TestRunRefusesToOverwrite(t *testing.T) {
	db := openDB(t, "backup_twice")
	b := New(db, t.TempDir(), 0, nil)
	at := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return at }

	_, err := b.Run(context.Background())
	require.NoError(t, err)
	_, err = b.Run(context.Background())
	assert.Error(t, err)
}

func TestSnapshotsIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	b := New(nil, dir, 0, nil)
	snaps, err := b.Snapshots()
	require.NoError(t, err)
	assert.Empty(t, snaps)

	missing := New(nil, filepath.Join(dir, "absent"), 0, nil)
	snaps, err = missing.Snapshots()
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

type fakeUploader struct {
	paths []string
	err   error
}

func (f *fakeUploader) UploadFile(_ context.Context, p string) (string, error) {
	f.paths = append(f.paths, p)
	return filepath.Base(p), f.err
}

func TestRunUploadsSnapshot(t *testing.T) {
	db := openDB(t, "backup_upload")
	up := &fakeUploader{}
	b := New(db, t.TempDir(), 0, nil).WithUploader(up)

	path, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{path}, up.paths)

	// a failing upload keeps the local snapshot and the run succeeds
	up.err = assert.AnError
	b.now = func() time.Time { return time.Now().Add(time.Hour) }
	path, err = b.Run(context.Background())
	require.NoError(t, err)
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}
