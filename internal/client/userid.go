package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const userIDFile = "user_id"

// LoadOrCreateUserID returns the user ID stored in dir, creating and saving
// a new UUID on first use. When the file cannot be written the new ID is
// still returned, together with the error, and will not survive a restart.
func LoadOrCreateUserID(dir string) (string, error) {
	path := filepath.Join(dir, userIDFile)
	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return uuid.NewString(), fmt.Errorf("client: read user id: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return id, fmt.Errorf("client: create data dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return id, fmt.Errorf("client: save user id: %w", err)
	}
	return id, nil
}
