package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"donusum/blocks"
	"donusum/common"
	"donusum/models"
)

// Revalidator is notified after a document changes.
type Revalidator interface {
	Revalidate(slug string) error
}

// ContentModule stores one ordered block document per slug.
type ContentModule struct {
	db          *gorm.DB
	revalidator Revalidator
}

func NewContentModule(db *gorm.DB, revalidator Revalidator) *ContentModule {
	return &ContentModule{db: db, revalidator: revalidator}
}

// Get returns the document for slug, or nil when none has been saved yet.
// StageOrder is filled from the stage with the same slug on every read.
func (m *ContentModule) Get(ctx context.Context, slug string) (*models.PageContent, error) {
	db := m.db.WithContext(ctx)

	var doc models.PageContent
	err := db.Where("slug = ?", slug).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &common.PersistenceError{Op: "load page content", Err: err}
	}
	if doc.Blocks == nil {
		doc.Blocks = []blocks.Block{}
	}

	var st models.Stage
	err = db.Select("sequence_order").Where("slug = ?", slug).First(&st).Error
	switch {
	case err == nil:
		order := st.SequenceOrder
		doc.StageOrder = &order
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, &common.PersistenceError{Op: "load stage order", Err: err}
	}

	return &doc, nil
}

// Save validates every block and replaces the stored list as a whole,
// creating the document on first save. One invalid block rejects the
// entire call and nothing is written.
func (m *ContentModule) Save(ctx context.Context, slug string, list []blocks.Block) error {
	slug, err := common.NormalizeSlug(slug)
	if err != nil {
		return err
	}

	validated := make([]blocks.Block, 0, len(list))
	for i, b := range list {
		checked, err := blocks.ValidateBlock(b)
		if err != nil {
			var verr *blocks.ValidationError
			if errors.As(err, &verr) {
				return &blocks.ValidationError{Field: fmt.Sprintf("blocks[%d].%s", i, verr.Field), Reason: verr.Reason}
			}
			return err
		}
		if checked.ID == "" {
			checked.ID = uuid.NewString()
		}
		validated = append(validated, checked)
	}

	doc := models.PageContent{Slug: slug, Blocks: validated}
	err = m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"blocks", "updated_at"}),
	}).Create(&doc).Error
	if err != nil {
		return &common.PersistenceError{Op: "save page content", Err: err}
	}

	m.revalidate(slug)
	return nil
}

// SetTemplate marks or unmarks an existing document as a reusable template.
func (m *ContentModule) SetTemplate(ctx context.Context, slug string, isTemplate bool) error {
	res := m.db.WithContext(ctx).Model(&models.PageContent{}).
		Where("slug = ?", slug).
		Update("is_template", isTemplate)
	if res.Error != nil {
		return &common.PersistenceError{Op: "update template flag", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return &common.NotFoundError{Entity: "page content", Key: slug}
	}
	return nil
}

// ListTemplates returns every template document ordered by slug.
func (m *ContentModule) ListTemplates(ctx context.Context) ([]models.PageContent, error) {
	var docs []models.PageContent
	if err := m.db.WithContext(ctx).Where("is_template = ?", true).Order("slug ASC").Find(&docs).Error; err != nil {
		return nil, &common.PersistenceError{Op: "list templates", Err: err}
	}
	return docs, nil
}

// ApplyTemplate copies a template's blocks, with fresh ids, over the target
// document.
func (m *ContentModule) ApplyTemplate(ctx context.Context, templateSlug, targetSlug string) error {
	tmpl, err := m.Get(ctx, templateSlug)
	if err != nil {
		return err
	}
	if tmpl == nil {
		return &common.NotFoundError{Entity: "template", Key: templateSlug}
	}
	if !tmpl.IsTemplate {
		return &common.InvalidInputError{Field: "template", Reason: fmt.Sprintf("%q is not a template", templateSlug)}
	}

	copied := make([]blocks.Block, len(tmpl.Blocks))
	for i, b := range tmpl.Blocks {
		b.ID = uuid.NewString()
		copied[i] = b
	}
	return m.Save(ctx, targetSlug, copied)
}

func (m *ContentModule) revalidate(slug string) {
	if m.revalidator == nil {
		return
	}
	if err := m.revalidator.Revalidate(slug); err != nil {
		log.Warn().Err(err).Str("slug", slug).Msg("revalidation failed")
	}
}
