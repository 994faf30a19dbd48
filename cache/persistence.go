package cache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/powerfulqa/aszune-ai-bot-sub000/errors"
	"go.uber.org/zap"
)

// Persister owns the durable copy of the store: a single JSON document
// mapping fingerprints to records. Flushes rotate the previous file to a
// .backup sibling, write the new contents to a .tmp sibling, and swap it in
// with a rename, so a crash mid-write never corrupts the primary file.
type Persister struct {
	store  *Store
	path   string
	logger *zap.Logger
}

func NewPersister(store *Store, path string, logger *zap.Logger) *Persister {
	return &Persister{store: store, path: path, logger: logger}
}

// Flush writes the store to disk if and only if it is dirty. All failures
// leave the store unchanged and still dirty, so the next maintenance cycle
// retries automatically. The write lock is never held across disk I/O: the
// snapshot is staged first, then serialized and written outside the lock.
func (p *Persister) Flush() error {
	if !p.store.Dirty() {
		return nil
	}

	snap, gen := p.store.snapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrPersistence, "marshal cache snapshot: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return apperrors.Wrapf(apperrors.ErrPersistence, "create cache directory: %v", err)
	}

	// Best-effort backup of the previous durable copy. A failed backup does
	// not block the write.
	backupPath := p.path + ".backup"
	if _, err := os.Stat(p.path); err == nil {
		if err := copyFile(p.path, backupPath); err != nil {
			p.logger.Warn("Failed to write cache backup", zap.Error(err), zap.String("path", backupPath))
		}
	}

	tmpPath := p.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		p.restoreBackup()
		return apperrors.Wrapf(apperrors.ErrPersistence, "write cache temp file: %v", err)
	}
	if err := os.Rename(tmpPath, p.path); err != nil {
		os.Remove(tmpPath)
		p.restoreBackup()
		return apperrors.Wrapf(apperrors.ErrPersistence, "swap cache file into place: %v", err)
	}

	p.store.markClean(gen)
	p.logger.Debug("Flushed cache to disk",
		zap.Int("records", len(snap)),
		zap.String("path", p.path))
	return nil
}

// Load hydrates the store from disk at startup. A missing file is created
// empty; a corrupt file is logged and the store starts empty. The cache is
// recomputable from the backend, so data loss here is acceptable and never
// fatal - callers should log the returned error and proceed.
func (p *Persister) Load() error {
	// A leftover temp file means a flush was interrupted; its contents are
	// garbage.
	if err := os.Remove(p.path + ".tmp"); err == nil {
		p.logger.Warn("Removed incomplete cache temp file from previous run",
			zap.String("path", p.path+".tmp"))
	}

	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err == nil {
			if err := os.WriteFile(p.path, []byte("{}\n"), 0o644); err != nil {
				p.logger.Warn("Could not create empty cache file", zap.Error(err))
			}
		}
		p.logger.Info("No cache file found, starting with empty cache", zap.String("path", p.path))
		return nil
	}
	if err != nil {
		p.logger.Warn("Failed to read cache file, starting with empty cache", zap.Error(err))
		return apperrors.Wrapf(apperrors.ErrPersistence, "read cache file: %v", err)
	}

	var records map[string]*Record
	if err := json.Unmarshal(data, &records); err != nil {
		p.logger.Warn("Cache file is corrupt, starting with empty cache",
			zap.Error(err),
			zap.String("path", p.path))
		return apperrors.Wrapf(apperrors.ErrPersistence, "parse cache file: %v", err)
	}

	valid := make(map[string]*Record, len(records))
	dropped := 0
	for fp, rec := range records {
		if rec == nil || strings.TrimSpace(rec.Question) == "" || strings.TrimSpace(rec.Answer) == "" {
			dropped++
			continue
		}
		if rec.Fingerprint == "" {
			rec.Fingerprint = fp
		}
		if rec.LastAccessed.Before(rec.CreatedAt) {
			rec.LastAccessed = rec.CreatedAt
		}
		valid[fp] = rec
	}
	p.store.hydrate(valid)

	if dropped > 0 {
		p.logger.Warn("Dropped invalid records while loading cache", zap.Int("dropped", dropped))
	}
	p.logger.Info("Loaded cache from disk",
		zap.Int("records", len(valid)),
		zap.String("path", p.path))
	return nil
}

// restoreBackup copies the .backup sibling over the primary file after a
// failed write. Best-effort: the primary is usually still intact because
// writes go through the temp file.
func (p *Persister) restoreBackup() {
	backupPath := p.path + ".backup"
	if _, err := os.Stat(backupPath); err != nil {
		return
	}
	if err := copyFile(backupPath, p.path); err != nil {
		p.logger.Error("Failed to restore cache from backup", zap.Error(err))
	}
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
