// Package archive keeps a raw copy of every captured message body,
// independent of whether ingestion produced a record. The archive is the
// audit trail for rule-table tuning: skipped and rejected messages are
// exactly the ones worth re-reading later.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Archiver stores one raw message body and returns a stable reference to
// where it landed.
type Archiver interface {
	Archive(ctx context.Context, rawText string) (string, error)
}

// objectName builds the archive key: one folder per capture day, uuid
// filename so byte-identical messages never collide.
func objectName(at time.Time) string {
	return fmt.Sprintf("messages/%s/%s.txt", at.Format("2006-01-02"), uuid.NewString())
}

// Dir is an Archiver writing one file per message under a local
// directory.
type Dir struct {
	root string
}

// NewDir creates a directory-backed archiver rooted at root.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Archive implements Archiver. Returns the written file path.
func (d *Dir) Archive(ctx context.Context, rawText string) (string, error) {
	name := filepath.Join(d.root, filepath.FromSlash(objectName(time.Now())))
	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return "", fmt.Errorf("Archive: %w", err)
	}
	if err := os.WriteFile(name, []byte(rawText), 0644); err != nil {
		return "", fmt.Errorf("Archive: %w", err)
	}
	return name, nil
}

var _ Archiver = (*Dir)(nil)
