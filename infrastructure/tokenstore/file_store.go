package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"digitlotto/domain/entities"

	log "github.com/sirupsen/logrus"
)

const tokenExt = ".json"

// FileStore keeps one JSON file per token in a directory. Writes go to a temp
// file that is synced and renamed into place, so a token is either fully on
// disk or absent.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates the directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create token directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(tokenID string) string {
	return filepath.Join(s.dir, tokenID+tokenExt)
}

func validTokenID(tokenID string) error {
	if tokenID == "" || strings.ContainsAny(tokenID, `/\`) || tokenID == "." || tokenID == ".." {
		return fmt.Errorf("invalid token id %q", tokenID)
	}
	return nil
}

// Append writes token durably and sets its Location
func (s *FileStore) Append(ctx context.Context, token *entities.Token) error {
	if err := validTokenID(token.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.path(token.ID)
	stored := *token
	stored.Location = target

	data, err := json.MarshalIndent(&stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token %s: %w", token.ID, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+token.ID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for token %s: %w", token.ID, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write token %s: %w", token.ID, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync token %s: %w", token.ID, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close token %s: %w", token.ID, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return fmt.Errorf("failed to move token %s into place: %w", token.ID, err)
	}
	if err := syncDir(s.dir); err != nil {
		log.WithError(err).WithField("dir", s.dir).Warn("Failed to sync token directory")
	}

	token.Location = target
	return nil
}

// List reads every token of coinID; an empty coinID lists all coins.
// Unreadable files are skipped and logged.
func (s *FileStore) List(ctx context.Context, coinID string) ([]*entities.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read token directory %s: %w", s.dir, err)
	}

	var tokens []*entities.Token
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, tokenExt) {
			continue
		}

		location := filepath.Join(s.dir, name)
		data, err := os.ReadFile(location)
		if err != nil {
			log.WithError(err).WithField("file", location).Warn("Skipping unreadable token file")
			continue
		}

		var token entities.Token
		if err := json.Unmarshal(data, &token); err != nil {
			log.WithError(err).WithField("file", location).Warn("Skipping malformed token file")
			continue
		}
		if !token.Amount.IsPositive() {
			log.WithField("file", location).Warn("Skipping token with non-positive amount")
			continue
		}
		if coinID != "" && token.CoinID != coinID {
			continue
		}

		token.Location = location
		tokens = append(tokens, &token)
	}

	sort.Slice(tokens, func(i, j int) bool { return tokens[i].ID < tokens[j].ID })
	return tokens, nil
}

// Delete removes a token; deleting a missing token is not an error
func (s *FileStore) Delete(ctx context.Context, tokenID string) error {
	if err := validTokenID(tokenID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(tokenID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete token %s: %w", tokenID, err)
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
