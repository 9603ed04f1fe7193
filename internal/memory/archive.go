package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"trendseer/internal/store"
)

// archiveRow is one memory in a Parquet snapshot. Content is kept as JSON so
// snapshots survive changes to the summary shape.
type archiveRow struct {
	ID        string    `parquet:"id"`
	UserID    string    `parquet:"user_id"`
	Content   string    `parquet:"content"`
	Embedding []float32 `parquet:"embedding,list"`
	CreatedAt int64     `parquet:"created_at"` // unix millis
}

// Export writes memories as a single Parquet file to w.
func Export(w io.Writer, memories []store.Memory) error {
	rows := make([]archiveRow, 0, len(memories))
	for _, m := range memories {
		content, err := json.Marshal(m.Content)
		if err != nil {
			return fmt.Errorf("archive: encode %s: %w", m.ID, err)
		}
		rows = append(rows, archiveRow{
			ID:        m.ID,
			UserID:    m.UserID,
			Content:   string(content),
			Embedding: m.Embedding,
			CreatedAt: m.CreatedAt.UnixMilli(),
		})
	}

	pw := parquet.NewGenericWriter[archiveRow](w)
	if _, err := pw.Write(rows); err != nil {
		return fmt.Errorf("archive: write rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("archive: close writer: %w", err)
	}
	return nil
}

// Import reads a snapshot written by Export, oldest memory first.
func Import(r io.ReaderAt, size int64) ([]store.Memory, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}

	pr := parquet.NewGenericReader[archiveRow](pf)
	defer pr.Close()

	rows := make([]archiveRow, pr.NumRows())
	n, err := pr.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("archive: read rows: %w", err)
	}
	rows = rows[:n]

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt < rows[j].CreatedAt })

	memories := make([]store.Memory, 0, len(rows))
	for _, row := range rows {
		memories = append(memories, store.Memory{
			ID:        row.ID,
			UserID:    row.UserID,
			Content:   store.DecodeContent([]byte(row.Content)),
			Embedding: row.Embedding,
			CreatedAt: time.UnixMilli(row.CreatedAt).UTC(),
		})
	}
	return memories, nil
}

// Archive keeps timestamped snapshot files in a directory.
type Archive struct {
	dir string
	mu  sync.Mutex
}

func NewArchive(dir string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create dir: %w", err)
	}
	return &Archive{dir: dir}, nil
}

// Snapshot writes memories to a new file named after the user and the
// current time and returns its path.
func (a *Archive) Snapshot(userID string, memories []store.Memory) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	path := filepath.Join(a.dir, fmt.Sprintf("%s_%d.parquet", safeName(userID), time.Now().UnixNano()))
	if err := WriteFile(path, memories); err != nil {
		return "", err
	}
	return path, nil
}

// Latest returns the newest snapshot path for userID, or "" if none exists.
func (a *Archive) Latest(userID string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(a.dir, safeName(userID)+"_*.parquet"))
	if err != nil {
		return "", fmt.Errorf("archive: list: %w", err)
	}
	if len(matches) == 0 {
		return "", nil
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// WriteFile exports memories to path, replacing it atomically.
func WriteFile(path string, memories []store.Memory) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("archive: create %s: %w", tmp, err)
	}
	if err := Export(f, memories); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("archive: sync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("archive: close: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("archive: rename: %w", err)
	}
	return nil
}

func ReadFile(path string) ([]store.Memory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("archive: stat %s: %w", path, err)
	}
	return Import(f, stat.Size())
}

func safeName(s string) string {
	out := []rune(s)
	for i, r := range out {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			out[i] = '-'
		}
	}
	if len(out) == 0 {
		return "unknown"
	}
	return string(out)
}
