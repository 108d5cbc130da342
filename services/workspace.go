package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// WorkspaceManager hands out private scratch directories, one per attempt.
type WorkspaceManager struct {
	root string
	log  *zap.Logger
}

// NewWorkspaceManager creates directories under root, or os.TempDir() when
// root is empty.
func NewWorkspaceManager(root string, log *zap.Logger) *WorkspaceManager {
	if root == "" {
		root = os.TempDir()
	}
	return &WorkspaceManager{root: root, log: log}
}

// Root is the directory workspaces are created in.
func (m *WorkspaceManager) Root() string { return m.root }

// Acquire creates a fresh directory for one attempt on gameID.
func (m *WorkspaceManager) Acquire(gameID uint) (string, error) {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return "", &WorkspaceError{Path: m.root, Err: err}
	}
	path := filepath.Join(m.root, fmt.Sprintf("turn-%d-%s", gameID, ulid.Make().String()))
	if err := os.Mkdir(path, 0o700); err != nil {
		return "", &WorkspaceError{Path: path, Err: err}
	}
	m.log.Debug("workspace acquired", zap.Uint("game_id", gameID), zap.String("workspace", path))
	return path, nil
}

// Release removes a workspace and everything in it. Failures are logged;
// they never mask the attempt's own result.
func (m *WorkspaceManager) Release(path string) {
	if path == "" {
		return
	}
	if !m.owns(path) {
		m.log.Error("refusing to remove directory outside workspace root",
			zap.String("workspace", path), zap.String("root", m.root))
		return
	}
	if err := os.RemoveAll(path); err != nil {
		m.log.Warn("failed to remove workspace", zap.String("workspace", path), zap.Error(err))
		return
	}
	m.log.Debug("workspace released", zap.String("workspace", path))
}

func (m *WorkspaceManager) owns(path string) bool {
	rel, err := filepath.Rel(filepath.Clean(m.root), filepath.Clean(path))
	if err != nil || rel == "." {
		return false
	}
	return !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel) && !strings.Contains(rel, string(filepath.Separator))
}
