// Package util - dated frame directories and their retention.
package util

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// DateLayout names the per-day directories.
const DateLayout = "2006-01-02"

// FileTimeLayout is the timestamp part of frame file names.
const FileTimeLayout = "2006-01-02_15-04-05"

// Frame directory kinds under the data root.
const (
	KindInput  = "input"
	KindOutput = "output"
)

// DatedDir returns root/kind/YYYY-MM-DD for t and creates it.
func DatedDir(root, kind string, t time.Time) (string, error) {
	dir := filepath.Join(root, kind, t.Format(DateLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create %s", dir)
	}
	return dir, nil
}

// FrameName returns the file name of a frame sampled by algorithm at t.
func FrameName(algorithmID int64, t time.Time) string {
	return strconv.FormatInt(algorithmID, 10) + "-" + t.Format(FileTimeLayout) + ".jpg"
}

// DatedDirs lists the per-day directories of kind under root, oldest first.
// Entries whose names are not dates are ignored.
func DatedDirs(root, kind string) ([]time.Time, error) {
	entries, err := os.ReadDir(filepath.Join(root, kind))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "list dated directories")
	}

	var days []time.Time
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		day, err := time.ParseInLocation(DateLayout, e.Name(), time.Local)
		if err != nil {
			continue
		}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

// RemoveDatedDirsBefore deletes input and output day directories older than
// cutoff's calendar day.
//
// Arguments:
//   - root: The data root.
//   - cutoff: Days strictly before this date are removed.
//
// Returns:
//   - []string: The removed directories.
//   - error: The first listing or removal failure.
func RemoveDatedDirsBefore(root string, cutoff time.Time) ([]string, error) {
	y, m, d := cutoff.Date()
	cutoffDay := time.Date(y, m, d, 0, 0, 0, 0, time.Local)

	var removed []string
	for _, kind := range []string{KindInput, KindOutput} {
		days, err := DatedDirs(root, kind)
		if err != nil {
			return removed, err
		}
		for _, day := range days {
			if !day.Before(cutoffDay) {
				break
			}
			dir := filepath.Join(root, kind, day.Format(DateLayout))
			if err := os.RemoveAll(dir); err != nil {
				return removed, errors.Wrapf(err, "remove %s", dir)
			}
			removed = append(removed, dir)
		}
	}
	return removed, nil
}
