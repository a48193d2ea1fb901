// Package jsonfile reads and writes the metadata.json array produced by the indexer.
// The array order is the vector index position order.
package jsonfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
)

func Load(path string) ([]domain.DocumentRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrConfiguration, "load metadata", err)
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var records []domain.DocumentRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "load metadata", fmt.Errorf("decode %s: %w", path, err))
	}
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = records[i].Path
		}
	}
	return records, nil
}

// Save writes the records atomically. When backup is set an existing file is first
// copied next to it with a .backup.json suffix.
func Save(path string, records []domain.DocumentRecord, backup bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}
	if backup {
		if prev, err := os.ReadFile(path); err == nil {
			if err := os.WriteFile(backupPath(path), prev, 0o644); err != nil {
				return fmt.Errorf("write metadata backup: %w", err)
			}
		}
	}

	if records == nil {
		records = []domain.DocumentRecord{}
	}
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return os.Rename(tmp, path)
}

func backupPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".backup.json"
}
