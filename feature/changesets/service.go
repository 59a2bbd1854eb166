package changesets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"geo-refresh/core/reconcile"
	"geo-refresh/core/storage"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when no local or archived changeset has the name.
	ErrNotFound = errors.New("changeset not found")
	// ErrInvalidName is returned for names that are not plain changeset file names.
	ErrInvalidName = errors.New("invalid changeset name")
	// ErrInvalidRetention is returned when pruning without a positive day count.
	ErrInvalidRetention = errors.New("retention must be at least one day")
)

// Service lists, serves and prunes changeset spreadsheets written by refreshes.
type Service struct {
	logger    *zap.Logger
	fs        afero.Fs
	dir       string
	retention int
	archive   *storage.Archive
	now       func() time.Time
}

// NewService creates a changeset service over the artifacts below dir.
// archive may be nil when changesets are only kept locally.
func NewService(logger *zap.Logger, fs afero.Fs, dir string, retentionDays int, archive *storage.Archive) *Service {
	return &Service{
		logger:    logger,
		fs:        fs,
		dir:       dir,
		retention: retentionDays,
		archive:   archive,
		now:       time.Now,
	}
}

// Listing holds the local and archived changesets, newest first.
type Listing struct {
	Local    []reconcile.ArtifactInfo `json:"local"`
	Archived []storage.ArchivedObject `json:"archived"`
}

// List returns every known changeset.
func (s *Service) List(ctx context.Context) (*Listing, error) {
	local, err := reconcile.ListArtifacts(s.fs, s.dir)
	if err != nil {
		return nil, err
	}
	out := &Listing{Local: local}
	if s.archive != nil {
		out.Archived, err = s.archive.List(ctx)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PruneResult lists what Prune removed.
type PruneResult struct {
	Cutoff   time.Time `json:"cutoff"`
	Local    []string  `json:"local"`
	Archived []string  `json:"archived"`
}

// Prune removes changesets older than days. Zero means the configured retention.
func (s *Service) Prune(ctx context.Context, days int) (*PruneResult, error) {
	if days == 0 {
		days = s.retention
	}
	if days < 1 {
		return nil, ErrInvalidRetention
	}

	res := &PruneResult{Cutoff: s.now().Add(-time.Duration(days) * 24 * time.Hour)}
	local, err := reconcile.PruneArtifacts(s.fs, s.dir, res.Cutoff)
	res.Local = local
	if err != nil {
		return res, err
	}
	if s.archive != nil {
		res.Archived, err = s.archive.PruneOlderThan(ctx, res.Cutoff)
		if err != nil {
			return res, err
		}
	}

	s.logger.Info("Changesets pruned",
		zap.Int("days", days),
		zap.Int("local", len(res.Local)),
		zap.Int("archived", len(res.Archived)))
	return res, nil
}

// Open returns the named changeset, looking in the local folder before the archive.
func (s *Service) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if name == "" || path.Base(name) != name || filepath.Base(name) != name ||
		!strings.EqualFold(filepath.Ext(name), reconcile.ArtifactExt) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	f, err := s.fs.Open(filepath.Join(s.dir, reconcile.ArtifactFolder, name))
	if err == nil {
		return f, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to open changeset %s: %w", name, err)
	}
	if s.archive == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	found, err := s.archived(ctx, name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.archive.Open(ctx, name)
}

func (s *Service) archived(ctx context.Context, name string) (bool, error) {
	objects, err := s.archive.List(ctx)
	if err != nil {
		return false, err
	}
	for _, o := range objects {
		if o.Name == name {
			return true, nil
		}
	}
	return false, nil
}
