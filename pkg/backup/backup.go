// Package backup takes consistent snapshots of the SQLite store.
package backup

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	errs "RiderGuard/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	filePrefix = "riderguard_"
	fileSuffix = ".db"
	stampFmt   = "20060102_150405"
)

// ErrUnsupported is returned for databases other than SQLite. Server
// databases are expected to be covered by their own tooling.
var ErrUnsupported error = errs.New("backup: only sqlite databases are supported")

// Uploader copies a finished snapshot off the host.
type Uploader interface {
	UploadFile(ctx context.Context, path string) (string, error)
}

type Backuper struct {
	db       *gorm.DB
	dir      string
	keep     int
	uploader Uploader
	now      func() time.Time
	log      *zap.Logger
}

// New returns a Backuper writing to dir and keeping at most keep snapshots
// (0 keeps all).
func New(db *gorm.DB, dir string, keep int, log *zap.Logger) *Backuper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backuper{db: db, dir: dir, keep: keep, now: time.Now, log: log.Named("backup")}
}

// WithUploader ships every new snapshot through u. A failed upload is
// logged; the local snapshot is kept either way.
func (b *Backuper) WithUploader(u Uploader) *Backuper {
	b.uploader = u
	return b
}

// Run writes a snapshot with VACUUM INTO, which is safe while the database
// is in use, then prunes old snapshots. It returns the snapshot path.
func (b *Backuper) Run(ctx context.Context) (string, error) {
	if b.db.Dialector.Name() != "sqlite" {
		return "", ErrUnsupported
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", errs.Wrap(err, "create backup directory")
	}

	dst := filepath.Join(b.dir, filePrefix+b.now().UTC().Format(stampFmt)+fileSuffix)
	if _, err := os.Stat(dst); err == nil {
		return "", errs.Conflict("backup %s already exists", dst)
	}
	quoted := "'" + strings.ReplaceAll(dst, "'", "''") + "'"
	if err := b.db.WithContext(ctx).Exec("VACUUM INTO " + quoted).Error; err != nil {
		return "", errs.Wrap(err, "vacuum into")
	}

	info, err := os.Stat(dst)
	if err != nil {
		return "", errs.Wrap(err, "stat backup")
	}
	b.log.Info("backup written", zap.String("path", dst), zap.Int64("bytes", info.Size()))

	if b.uploader != nil {
		if key, err := b.uploader.UploadFile(ctx, dst); err != nil {
			b.log.Warn("backup upload failed", zap.String("path", dst), zap.Error(err))
		} else {
			b.log.Info("backup uploaded", zap.String("key", key))
		}
	}

	if removed, err := b.prune(); err != nil {
		b.log.Warn("prune failed", zap.Error(err))
	} else if removed > 0 {
		b.log.Info("old backups removed", zap.Int("count", removed))
	}
	return dst, nil
}

// Snapshots lists snapshot paths, oldest first.
func (b *Backuper) Snapshots() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		out = append(out, filepath.Join(b.dir, name))
	}
	// the timestamp format sorts lexically
	sort.Strings(out)
	return out, nil
}

func (b *Backuper) prune() (int, error) {
	if b.keep <= 0 {
		return 0, nil
	}
	snaps, err := b.Snapshots()
	if err != nil {
		return 0, err
	}
	removed := 0
	for len(snaps)-removed > b.keep {
		if err := os.Remove(snaps[removed]); err != nil {
			return removed, errs.Wrapf(err, "remove %s", snaps[removed])
		}
		removed++
	}
	return removed, nil
}
