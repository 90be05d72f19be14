package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
)

const (
	SectionStage    = "asama"
	SectionPage     = "sayfa"
	SectionTimeline = "zaman-cizelgesi"
	SectionSitemap  = "sitemap"
)

// Store keeps rendered public responses on disk, one file per section and key.
type Store struct {
	root   string
	maxAge time.Duration
}

func NewStore(root string, maxAge time.Duration) *Store {
	return &Store{root: root, maxAge: maxAge}
}

// Path returns the cache file for a section entry.
func (s *Store) Path(section, key string) string {
	hash := generateHash(section + key)
	shortHash := hash[:16]
	return filepath.Join(s.root, section, fmt.Sprintf("%s_%s.cache", safeName(key), shortHash))
}

// generateHash generates an xxHash hash for the given string
func generateHash(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}

func safeName(key string) string {
	if key == "" {
		return "index"
	}
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
}

// Write stores body for a section entry.
func (s *Store) Write(section, key string, body []byte) error {
	if err := os.MkdirAll(filepath.Join(s.root, section), 0755); err != nil {
		return err
	}
	return os.WriteFile(s.Path(section, key), body, 0644)
}

// Read returns the cached body if present and younger than maxAge.
func (s *Store) Read(section, key string) ([]byte, bool) {
	path := s.Path(section, key)

	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if s.maxAge > 0 && time.Since(info.ModTime()) > s.maxAge {
		return nil, false
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return body, true
}

// Clear removes a single entry.
func (s *Store) Clear(section, key string) error {
	err := os.Remove(s.Path(section, key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ClearSection removes every entry of a section.
func (s *Store) ClearSection(section string) error {
	return os.RemoveAll(filepath.Join(s.root, section))
}

// Revalidate drops everything a change to slug can affect: its stage page,
// its page content, the timeline and the sitemap.
func (s *Store) Revalidate(slug string) error {
	if err := s.Clear(SectionStage, slug); err != nil {
		return err
	}
	if err := s.Clear(SectionPage, slug); err != nil {
		return err
	}
	if err := s.ClearSection(SectionTimeline); err != nil {
		return err
	}
	if err := s.ClearSection(SectionSitemap); err != nil {
		return err
	}
	log.Debug().Str("slug", slug).Msg("cache revalidated")
	return nil
}

// ClearAll removes the whole cache directory.
func (s *Store) ClearAll() error {
	return os.RemoveAll(s.root)
}

// ClearOld removes cache files older than maxAge.
func (s *Store) ClearOld() error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return nil
	}
	return filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".cache") {
			return nil
		}
		if time.Since(info.ModTime()) > s.maxAge {
			os.Remove(path)
		}
		return nil
	})
}
