package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/clawdesk/clawdesk/internal/apperr"
)

// backupStamp formats the suffix of a backup file. It sorts lexically in
// chronological order.
const backupStamp = "2006-01-02T15-04-05.000Z"

// BackupFile copies path to "<path>.bak-<stamp>" and returns the backup
// location. A missing source is not an error and yields "".
func BackupFile(path string, now time.Time) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("config: read %s for backup: %w", path, err)
	}
	dst := path + ".bak-" + now.UTC().Format(backupStamp)
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return "", fmt.Errorf("config: write backup %s: %w", dst, err)
	}
	return dst, nil
}

// ListBackups returns the backups of path, newest first.
func ListBackups(path string) []string {
	dir := filepath.Dir(path)
	prefix := filepath.Base(path) + ".bak-"
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []string{}
	}
	out := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(out)
	slices.Reverse(out)
	return out
}

// RestoreBackup copies backup over path. backup must be one of the files
// ListBackups reports for path.
func RestoreBackup(path, backup string) error {
	if !slices.Contains(ListBackups(path), filepath.Clean(backup)) {
		return apperr.Validation("backup not found")
	}
	data, err := os.ReadFile(backup)
	if err != nil {
		return fmt.Errorf("config: read backup: %w", err)
	}
	return WriteFileAtomic(path, data, 0o600)
}

// FileMode describes the permissions of a file for display.
type FileMode struct {
	Mode          string `json:"mode"`
	WorldReadable bool   `json:"worldReadable"`
}

// Permissions reports the mode of path, or nil when it does not exist.
func Permissions(path string) *FileMode {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	perm := info.Mode().Perm()
	return &FileMode{Mode: fmt.Sprintf("%o", perm), WorldReadable: perm&0o004 != 0}
}
