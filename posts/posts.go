package posts

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"donusum/common"
	"donusum/models"
)

// Revalidator is told the slug of the stage whose posts changed.
type Revalidator interface {
	Revalidate(slug string) error
}

type PostModule struct {
	db          *gorm.DB
	revalidator Revalidator
	now         func() time.Time
}

func NewPostModule(db *gorm.DB, revalidator Revalidator) *PostModule {
	return &PostModule{
		db:          db,
		revalidator: revalidator,
		now:         common.UTCNow,
	}
}

func published(db *gorm.DB, stageID int) *gorm.DB {
	return db.Model(&models.Post{}).Where("stage_id = ? AND is_published = ?", stageID, true)
}

// LatestForStage returns the most recently published post of a stage, or nil.
func (m *PostModule) LatestForStage(ctx context.Context, stageID int) (*models.Post, error) {
	var post models.Post
	err := published(m.db.WithContext(ctx), stageID).
		Order("published_at DESC").
		Order("created_at ASC").
		Order("id ASC").
		Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &common.PersistenceError{Op: "load latest post", Err: err}
	}
	return &post, nil
}

// NextEvent returns the closest published meeting or survey whose event
// date is still ahead, or nil.
func (m *PostModule) NextEvent(ctx context.Context, stageID int) (*models.Post, error) {
	var post models.Post
	err := published(m.db.WithContext(ctx), stageID).
		Where("type IN ?", []models.PostType{models.PostMeeting, models.PostSurvey}).
		Where("event_date > ?", m.now().UTC()).
		Order("event_date ASC").
		Order("id ASC").
		Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &common.PersistenceError{Op: "load next event", Err: err}
	}
	return &post, nil
}

// ForStageSlug lists the published posts of the stage with slug, newest
// first. An unknown slug yields an empty list.
func (m *PostModule) ForStageSlug(ctx context.Context, slug string) ([]models.Post, error) {
	var st models.Stage
	err := m.db.WithContext(ctx).Select("id").Where("slug = ?", slug).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []models.Post{}, nil
	}
	if err != nil {
		return nil, &common.PersistenceError{Op: "load stage", Err: err}
	}

	var list []models.Post
	err = published(m.db.WithContext(ctx), st.ID).
		Order("published_at DESC").
		Order("created_at ASC").
		Order("id ASC").
		Find(&list).Error
	if err != nil {
		return nil, &common.PersistenceError{Op: "list stage posts", Err: err}
	}
	return list, nil
}

// ListForStage returns every post of a stage, drafts included, newest first.
func (m *PostModule) ListForStage(ctx context.Context, stageID int) ([]models.Post, error) {
	var list []models.Post
	err := m.db.WithContext(ctx).
		Where("stage_id = ?", stageID).
		Order("created_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, &common.PersistenceError{Op: "list posts", Err: err}
	}
	return list, nil
}

type NewPost struct {
	StageID       int             `json:"stageId" binding:"required"`
	Type          models.PostType `json:"type" binding:"required,oneof=ANNOUNCEMENT MEETING SURVEY"`
	Title         string          `json:"title" binding:"required"`
	Content       json.RawMessage `json:"content"`
	ImageURL      *string         `json:"imageUrl"`
	AttachmentURL *string         `json:"attachmentUrl"`
	EventDate     *time.Time      `json:"eventDate"`
}

// Create stores a draft post under an existing stage.
func (m *PostModule) Create(ctx context.Context, in NewPost) (*models.Post, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, &common.InvalidInputError{Field: "title", Reason: "is required"}
	}
	switch in.Type {
	case models.PostAnnouncement:
		if in.EventDate != nil {
			return nil, &common.InvalidInputError{Field: "eventDate", Reason: "only meetings and surveys have an event date"}
		}
	case models.PostMeeting, models.PostSurvey:
	default:
		return nil, &common.InvalidInputError{Field: "type", Reason: "unknown post type " + string(in.Type)}
	}
	if len(in.Content) > 0 && !json.Valid(in.Content) {
		return nil, &common.InvalidInputError{Field: "content", Reason: "is not valid JSON"}
	}

	post := models.Post{
		StageID:       in.StageID,
		Type:          in.Type,
		Title:         title,
		ImageURL:      blankToNil(in.ImageURL),
		AttachmentURL: blankToNil(in.AttachmentURL),
		EventDate:     common.UTCPtr(in.EventDate),
	}
	if len(in.Content) > 0 {
		post.Content = datatypes.JSON(in.Content)
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Stage{}).Where("id = ?", in.StageID).Count(&count).Error; err != nil {
			return &common.PersistenceError{Op: "check stage", Err: err}
		}
		if count == 0 {
			return &common.NotFoundError{Entity: "stage", Key: strconv.Itoa(in.StageID)}
		}
		if err := tx.Create(&post).Error; err != nil {
			return &common.PersistenceError{Op: "create post", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// Publish makes a post visible. Publishing again moves PublishedAt forward.
func (m *PostModule) Publish(ctx context.Context, id string) (*models.Post, error) {
	return m.change(ctx, id, func(p *models.Post) { p.Publish(m.now()) })
}

func (m *PostModule) Unpublish(ctx context.Context, id string) (*models.Post, error) {
	return m.change(ctx, id, func(p *models.Post) { p.Unpublish() })
}

func (m *PostModule) change(ctx context.Context, id string, apply func(*models.Post)) (*models.Post, error) {
	var post models.Post
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := loadPost(tx, id, &post); err != nil {
			return err
		}
		apply(&post)
		err := tx.Model(&post).Select("is_published", "published_at", "updated_at").Updates(map[string]interface{}{
			"is_published": post.IsPublished,
			"published_at": post.PublishedAt,
			"updated_at":   m.now().UTC(),
		}).Error
		if err != nil {
			return &common.PersistenceError{Op: "update post", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.revalidateStage(ctx, post.StageID)
	return &post, nil
}

// Delete removes a post. Deleting a published post refreshes its stage page.
func (m *PostModule) Delete(ctx context.Context, id string) error {
	var post models.Post
	if err := loadPost(m.db.WithContext(ctx), id, &post); err != nil {
		return err
	}
	if err := m.db.WithContext(ctx).Delete(&post).Error; err != nil {
		return &common.PersistenceError{Op: "delete post", Err: err}
	}
	if post.IsPublished {
		m.revalidateStage(ctx, post.StageID)
	}
	return nil
}

func loadPost(tx *gorm.DB, id string, post *models.Post) error {
	err := tx.Where("id = ?", id).First(post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &common.NotFoundError{Entity: "post", Key: id}
	}
	if err != nil {
		return &common.PersistenceError{Op: "load post", Err: err}
	}
	return nil
}

func (m *PostModule) revalidateStage(ctx context.Context, stageID int) {
	if m.revalidator == nil {
		return
	}
	var st models.Stage
	if err := m.db.WithContext(ctx).Select("slug").First(&st, stageID).Error; err != nil {
		log.Warn().Err(err).Int("stage_id", stageID).Msg("stage lookup for revalidation failed")
		return
	}
	if err := m.revalidator.Revalidate(st.Slug); err != nil {
		log.Warn().Err(err).Str("slug", st.Slug).Msg("revalidation failed")
	}
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
