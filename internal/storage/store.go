package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/decet2025-sketch/cert-api/pkg/logger"
)

// Store persists certificate artifacts under opaque file ids.
type Store interface {
	Put(ctx context.Context, data []byte, filename string) (fileID string, err error)
	Get(ctx context.Context, fileID string) ([]byte, string, error)
	Exists(ctx context.Context, fileID string) (bool, error)
}

type filesystemStore struct {
	root   string
	logger *logger.Logger
}

func NewFilesystemStore(root string, log *logger.Logger) (Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &filesystemStore{root: root, logger: log}, nil
}

// Put writes the artifact under a fresh uuid. The original filename is kept
// as a suffix so downloads carry a meaningful name.
func (s *filesystemStore) Put(ctx context.Context, data []byte, filename string) (string, error) {
	fileID := fmt.Sprintf("%s_%s", uuid.New().String(), sanitizeFilename(filename))
	path := filepath.Join(s.root, fileID)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write certificate artifact: %w", err)
	}

	s.logger.Debug("stored certificate artifact", "file_id", fileID, "size", len(data))
	return fileID, nil
}

func (s *filesystemStore) Get(ctx context.Context, fileID string) ([]byte, string, error) {
	path, err := s.resolve(fileID)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("certificate artifact %s not found", fileID)
		}
		return nil, "", fmt.Errorf("failed to read certificate artifact: %w", err)
	}
	return data, downloadName(fileID), nil
}

func (s *filesystemStore) Exists(ctx context.Context, fileID string) (bool, error) {
	path, err := s.resolve(fileID)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// resolve rejects ids that would escape the storage root.
func (s *filesystemStore) resolve(fileID string) (string, error) {
	if fileID == "" || strings.ContainsAny(fileID, "/\\") || strings.Contains(fileID, "..") {
		return "", fmt.Errorf("invalid file id")
	}
	return filepath.Join(s.root, fileID), nil
}

func sanitizeFilename(name string) string {
	if name == "" {
		return "certificate.pdf"
	}
	name = filepath.Base(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}

// downloadName strips the uuid prefix back off for the Content-Disposition
// filename.
func downloadName(fileID string) string {
	if i := strings.Index(fileID, "_"); i > 0 && i < len(fileID)-1 {
		return fileID[i+1:]
	}
	return fileID
}
