package stage

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"donusum/common"
	"donusum/models"
)

//go:embed catalog.yaml
var catalogYAML []byte

// CatalogEntry is one stage of the built-in process description.
type CatalogEntry struct {
	ID            int     `yaml:"id"`
	Slug          string  `yaml:"slug"`
	Title         string  `yaml:"title"`
	Icon          string  `yaml:"icon"`
	SequenceOrder float64 `yaml:"sequence_order"`
}

type catalogFile struct {
	Stages []CatalogEntry `yaml:"stages"`
}

var (
	catalog     []CatalogEntry
	catalogErr  error
	catalogOnce sync.Once
)

// Catalog returns the embedded stage list, parsed once per process. Callers
// get a copy and cannot change the shared list.
func Catalog() ([]CatalogEntry, error) {
	catalogOnce.Do(func() {
		catalog, catalogErr = parseCatalog(catalogYAML)
	})
	if catalogErr != nil {
		return nil, catalogErr
	}
	out := make([]CatalogEntry, len(catalog))
	copy(out, catalog)
	return out, nil
}

func parseCatalog(raw []byte) ([]CatalogEntry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("stage catalog: %w", err)
	}

	seenSlug := make(map[string]bool)
	seenOrder := make(map[float64]bool)
	for _, e := range file.Stages {
		if e.Slug == "" || e.Title == "" {
			return nil, fmt.Errorf("stage catalog: entry %d has no slug or title", e.ID)
		}
		if _, err := common.NormalizeSlug(e.Slug); err != nil || e.Slug != strings.TrimSpace(e.Slug) {
			return nil, fmt.Errorf("stage catalog: malformed slug %q", e.Slug)
		}
		if seenSlug[e.Slug] {
			return nil, fmt.Errorf("stage catalog: duplicate slug %q", e.Slug)
		}
		if seenOrder[e.SequenceOrder] {
			return nil, fmt.Errorf("stage catalog: duplicate sequence_order %v", e.SequenceOrder)
		}
		seenSlug[e.Slug] = true
		seenOrder[e.SequenceOrder] = true
	}

	sort.Slice(file.Stages, func(i, j int) bool {
		return file.Stages[i].SequenceOrder < file.Stages[j].SequenceOrder
	})
	return file.Stages, nil
}

// Stage converts a catalog entry into a locked, visible stage record.
func (e CatalogEntry) Stage() models.Stage {
	return models.Stage{
		ID:            e.ID,
		Slug:          e.Slug,
		Title:         e.Title,
		Icon:          e.Icon,
		SequenceOrder: e.SequenceOrder,
		Status:        models.StageLocked,
		IsVisible:     true,
	}
}

// Seed fills an empty stages table from the catalog. A table that already
// has rows is left alone.
func Seed(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Stage{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	entries, err := Catalog()
	if err != nil {
		return err
	}
	stages := make([]models.Stage, 0, len(entries))
	for _, e := range entries {
		stages = append(stages, e.Stage())
	}
	// the first stage of a fresh process is the one being worked on
	if len(stages) > 0 {
		stages[0].Status = models.StageActive
	}
	return db.Create(&stages).Error
}
