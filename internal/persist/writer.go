package persist

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const (
	backupStampLayout = "20060102T150405Z"
	maxBackupAttempts = 100

	// ScriptMode is applied to boot scripts that did not exist before.
	ScriptMode os.FileMode = 0o755
	// ConfigMode is applied to configuration files that did not exist before.
	ConfigMode os.FileMode = 0o644

	executeBits os.FileMode = 0o111
)

// Writer replaces files atomically, keeping a backup of the previous content.
// It does not lock files against concurrent writers.
type Writer struct {
	tool string
	now  func() time.Time
}

// NewWriter returns a Writer naming backups after tool.
func NewWriter(tool string) *Writer {
	return &Writer{tool: tool, now: time.Now}
}

// WithClock overrides the time source used for backup names.
func (w *Writer) WithClock(now func() time.Time) *Writer {
	w.now = now
	return w
}

// Write replaces doc.Path with content. When the file existed, its previous
// content is copied to a backup first and its mode is kept, gaining only the
// execute bits set in mode; otherwise mode is used. A symlinked path is resolved
// so the link target is replaced and the link survives.
// The backup path is returned, empty when no backup was needed.
func (w *Writer) Write(doc Document, content string, mode os.FileMode) (string, error) {
	var backup string
	if doc.Exists {
		if target, err := filepath.EvalSymlinks(doc.Path); err == nil {
			doc.Path = target
		}
		var err error
		if backup, err = w.backup(doc); err != nil {
			return "", err
		}
		mode = doc.Mode | mode&executeBits
	}

	if err := writeFileAtomic(doc.Path, []byte(content), mode); err != nil {
		return backup, err
	}
	return backup, nil
}

// BackupName returns the first candidate backup path for path at t.
func BackupName(path, tool string, t time.Time) string {
	return fmt.Sprintf("%s.%s-%s.bak", path, tool, t.UTC().Format(backupStampLayout))
}

func (w *Writer) backup(doc Document) (string, error) {
	base := BackupName(doc.Path, w.tool, w.now())
	for attempt := 0; attempt < maxBackupAttempts; attempt++ {
		name := base
		if attempt > 0 {
			name = fmt.Sprintf("%s.%d", base, attempt)
		}
		err := writeFileExclusive(name, []byte(doc.Content), doc.Mode)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("backup %s: %w", doc.Path, err)
		}
		return name, nil
	}
	return "", fmt.Errorf("backup %s: no free backup name after %d attempts", doc.Path, maxBackupAttempts)
}

// writeFileExclusive creates path, failing if it exists, writes the payload, and fsyncs it.
func writeFileExclusive(path string, data []byte, perm os.FileMode) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	return file.Close()
}

// writeFileAtomic writes a temp file next to path, fsyncs it, and renames it into place.
func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open %s: %w", dir, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", dir, err)
	}
	return nil
}
