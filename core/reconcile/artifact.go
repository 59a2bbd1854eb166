package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"geo-refresh/core/dataset"
	"geo-refresh/core/utils"

	"github.com/spf13/afero"
	"github.com/xuri/excelize/v2"
)

const (
	// ArtifactFolder is the sub folder of the changeset directory holding artifacts.
	ArtifactFolder = "changesets"
	// ArtifactExt is the artifact file extension.
	ArtifactExt = ".xlsx"
	// ArtifactContentType is the MIME type used when archiving artifacts.
	ArtifactContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	changeTypeColumn = "change_type"
	sheetName        = "Sheet1"
	maxNameLength    = 100
	maxCellChars     = 32767
	timestampLayout  = "20060102_150405"
)

// ArtifactInfo describes a changeset file on disk.
type ArtifactInfo struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// ArtifactName returns the file name of an artifact for targetPath written at now.
func ArtifactName(targetPath string, now time.Time) string {
	return now.Format(timestampLayout) + "_" + utils.SafeName(targetPath, maxNameLength) + ArtifactExt
}

// WriteArtifact writes cs as a spreadsheet under <opts.ChangesetDir>/changesets
// and uploads it to opts.Archive when configured. It returns the local path,
// also alongside an ErrArchive failure.
func WriteArtifact(ctx context.Context, opts Options, targetPath string, cs *ChangeSet) (string, error) {
	fs := opts.fs()
	dir := filepath.Join(opts.ChangesetDir, ArtifactFolder)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	out := filepath.Join(dir, ArtifactName(targetPath, opts.now()))
	if err := writeWorkbook(fs, out, cs); err != nil {
		return "", err
	}

	if opts.Archive != nil {
		if err := archiveArtifact(ctx, opts, out); err != nil {
			return out, err
		}
	}
	return out, nil
}

func writeWorkbook(fs afero.Fs, path string, cs *ChangeSet) error {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]any, 0, len(cs.Fields)+1)
	for _, name := range cs.Fields {
		header = append(header, name)
	}
	header = append(header, changeTypeColumn)

	row := 1
	put := func(values []any) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		row++
		return f.SetSheetRow(sheetName, cell, &values)
	}

	if err := put(header); err != nil {
		return fmt.Errorf("failed to write changeset header: %w", err)
	}
	for _, rec := range cs.Adds {
		if err := put(artifactRow(cs, rec, ChangeAdd)); err != nil {
			return fmt.Errorf("failed to write changeset row: %w", err)
		}
	}
	for _, oid := range cs.UpdateIDs() {
		if err := put(artifactRow(cs, cs.Updates[oid], ChangeUpdate)); err != nil {
			return fmt.Errorf("failed to write changeset row: %w", err)
		}
	}
	for _, oid := range cs.DeleteIDs() {
		if err := put(artifactRow(cs, cs.Deletes[oid], ChangeDelete)); err != nil {
			return fmt.Errorf("failed to write changeset row: %w", err)
		}
	}

	file, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.WriteTo(file); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}

func artifactRow(cs *ChangeSet, rec dataset.Record, ct ChangeType) []any {
	values := make([]any, 0, len(cs.Fields)+1)
	for _, name := range cs.Fields {
		values = append(values, cellValue(rec[name]))
	}
	return append(values, string(ct))
}

// cellValue converts a record value to something a spreadsheet cell can hold.
func cellValue(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case time.Time:
		return x.UTC()
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(x))
	case string:
		if utf8.RuneCountInString(x) > maxCellChars {
			return string([]rune(x)[:maxCellChars])
		}
		return x
	}
	return v
}

func archiveArtifact(ctx context.Context, opts Options, path string) error {
	fs := opts.fs()
	info, err := fs.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	file, err := fs.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	if _, err := opts.Archive.Put(ctx, filepath.Base(path), file, info.Size(), ArtifactContentType); err != nil {
		return fmt.Errorf("%w %s: %w", ErrArchive, path, err)
	}
	return nil
}

// ListArtifacts returns the artifacts under <dir>/changesets, newest first.
func ListArtifacts(fs afero.Fs, dir string) ([]ArtifactInfo, error) {
	folder := filepath.Join(dir, ArtifactFolder)
	entries, err := afero.ReadDir(fs, folder)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", folder, err)
	}

	var out []ArtifactInfo
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ArtifactExt) {
			continue
		}
		out = append(out, ArtifactInfo{
			Name:    e.Name(),
			Path:    filepath.Join(folder, e.Name()),
			Size:    e.Size(),
			ModTime: e.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.After(out[j].ModTime) })
	return out, nil
}

// PruneArtifacts removes artifacts last modified before cutoff and returns
// their names.
func PruneArtifacts(fs afero.Fs, dir string, cutoff time.Time) ([]string, error) {
	artifacts, err := ListArtifacts(fs, dir)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, a := range artifacts {
		if !a.ModTime.Before(cutoff) {
			continue
		}
		if err := fs.Remove(a.Path); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", a.Path, err)
		}
		removed = append(removed, a.Name)
	}
	return removed, nil
}
