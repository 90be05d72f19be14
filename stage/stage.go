package stage

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"donusum/common"
	"donusum/models"
)

// Revalidator is told which stage slug changed so cached read paths can be
// rebuilt. Failures are logged and never undo a committed change.
type Revalidator interface {
	Revalidate(slug string) error
}

type StageModule struct {
	db          *gorm.DB
	revalidator Revalidator
	now         func() time.Time
}

func NewStageModule(db *gorm.DB, revalidator Revalidator) *StageModule {
	return &StageModule{
		db:          db,
		revalidator: revalidator,
		now:         common.UTCNow,
	}
}

// List returns every stage in display order.
func (s *StageModule) List(ctx context.Context) ([]models.Stage, error) {
	var stages []models.Stage
	if err := s.db.WithContext(ctx).Order("sequence_order ASC").Find(&stages).Error; err != nil {
		return nil, &common.PersistenceError{Op: "list stages", Err: err}
	}
	return stages, nil
}

// ListVisible returns the stages shown in public navigation.
func (s *StageModule) ListVisible(ctx context.Context) ([]models.Stage, error) {
	var stages []models.Stage
	if err := s.db.WithContext(ctx).Where("is_visible = ?", true).Order("sequence_order ASC").Find(&stages).Error; err != nil {
		return nil, &common.PersistenceError{Op: "list visible stages", Err: err}
	}
	return stages, nil
}

// Get loads a stage by id. A missing stage is a NotFoundError.
func (s *StageModule) Get(ctx context.Context, id int) (*models.Stage, error) {
	return loadStage(s.db.WithContext(ctx), id)
}

// FindBySlug returns nil without an error when no stage has the slug.
func (s *StageModule) FindBySlug(ctx context.Context, slug string) (*models.Stage, error) {
	var st models.Stage
	err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &common.PersistenceError{Op: "load stage", Err: err}
	}
	return &st, nil
}

func loadStage(tx *gorm.DB, id int) (*models.Stage, error) {
	var st models.Stage
	if err := tx.First(&st, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &common.NotFoundError{Entity: "stage", Key: strconv.Itoa(id)}
		}
		return nil, &common.PersistenceError{Op: "load stage", Err: err}
	}
	return &st, nil
}

type NewStage struct {
	Slug          string
	Title         string
	Description   string
	Icon          string
	SequenceOrder *float64
	IsVisible     bool
	AutoPostTitle *string
}

// Create adds a locked stage. Without an explicit position the stage is
// appended after the current last one.
func (s *StageModule) Create(ctx context.Context, in NewStage) (*models.Stage, error) {
	slug, err := common.NormalizeSlug(in.Slug)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, &common.InvalidInputError{Field: "title", Reason: "is required"}
	}

	var created models.Stage
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Stage{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
			return &common.PersistenceError{Op: "check stage slug", Err: err}
		}
		if count > 0 {
			return &common.InvalidInputError{Field: "slug", Reason: "is already in use"}
		}

		order, err := nextSequenceOrder(tx)
		if err != nil {
			return err
		}
		if in.SequenceOrder != nil {
			order = *in.SequenceOrder
			if err := tx.Model(&models.Stage{}).Where("sequence_order = ?", order).Count(&count).Error; err != nil {
				return &common.PersistenceError{Op: "check sequence order", Err: err}
			}
			if count > 0 {
				return &common.InvalidInputError{Field: "sequenceOrder", Reason: "is already taken"}
			}
		}

		created = models.Stage{
			Slug:          slug,
			Title:         title,
			Description:   in.Description,
			Icon:          in.Icon,
			SequenceOrder: order,
			Status:        models.StageLocked,
			IsVisible:     in.IsVisible,
			AutoPostTitle: normalizeTitle(in.AutoPostTitle),
		}
		if err := tx.Create(&created).Error; err != nil {
			return &common.PersistenceError{Op: "create stage", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.revalidate(created.Slug)
	return &created, nil
}

// NextSequenceOrder is one past the largest sequenceOrder, or 1 for an empty table.
func (s *StageModule) NextSequenceOrder(ctx context.Context) (float64, error) {
	return nextSequenceOrder(s.db.WithContext(ctx))
}

func nextSequenceOrder(tx *gorm.DB) (float64, error) {
	var result struct {
		Max *float64
	}
	if err := tx.Model(&models.Stage{}).Select("MAX(sequence_order) AS max").Scan(&result).Error; err != nil {
		return 0, &common.PersistenceError{Op: "read max sequence order", Err: err}
	}
	if result.Max == nil {
		return 1, nil
	}
	return math.Floor(*result.Max) + 1, nil
}

// SequenceBetween gives a position strictly between two neighbours so a
// stage can be inserted without renumbering the others.
func SequenceBetween(before, after float64) float64 {
	return before + (after-before)/2
}

type StageUpdate struct {
	Title         *string
	Description   *string
	IsVisible     *bool
	Progress      *int
	AutoPostTitle *string
}

// Update edits display fields. Status changes go through Transition.
func (s *StageModule) Update(ctx context.Context, id int, in StageUpdate) (*models.Stage, error) {
	var updated *models.Stage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st, err := loadStage(tx, id)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if in.Title != nil {
			title := strings.TrimSpace(*in.Title)
			if title == "" {
				return &common.InvalidInputError{Field: "title", Reason: "is required"}
			}
			updates["title"] = title
		}
		if in.Description != nil {
			updates["description"] = *in.Description
		}
		if in.IsVisible != nil {
			updates["is_visible"] = *in.IsVisible
		}
		if in.Progress != nil {
			if err := checkProgress(st.Status, *in.Progress); err != nil {
				return err
			}
			updates["progress"] = *in.Progress
		}
		if in.AutoPostTitle != nil {
			updates["auto_post_title"] = normalizeTitle(in.AutoPostTitle)
		}
		if len(updates) > 0 {
			if err := tx.Model(st).Updates(updates).Error; err != nil {
				return &common.PersistenceError{Op: "update stage", Err: err}
			}
		}

		updated, err = loadStage(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.revalidate(updated.Slug)
	return updated, nil
}

func checkProgress(status models.StageStatus, progress int) error {
	if progress < 0 || progress > 100 {
		return &common.InvalidInputError{Field: "progress", Reason: "must be between 0 and 100"}
	}
	if progress == 100 && status != models.StageCompleted {
		return &common.InvalidInputError{Field: "progress", Reason: "can reach 100 only when the stage is completed"}
	}
	return nil
}

// ToggleVisibility flips whether the stage appears in public navigation.
func (s *StageModule) ToggleVisibility(ctx context.Context, id int) (*models.Stage, error) {
	st, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	visible := !st.IsVisible
	return s.Update(ctx, id, StageUpdate{IsVisible: &visible})
}

// Transition moves a stage to target if the state machine allows it from
// the persisted status. Completion is delegated to Complete so the
// announcement draft is always created with it.
func (s *StageModule) Transition(ctx context.Context, id int, target models.StageStatus) (*models.Stage, error) {
	if !ValidStatus(target) {
		return nil, &common.InvalidInputError{Field: "status", Reason: "unknown status " + string(target)}
	}
	if target == models.StageCompleted {
		completion, err := s.Complete(ctx, id)
		if err != nil {
			return nil, err
		}
		return completion.Stage, nil
	}

	var moved *models.Stage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st, err := loadStage(tx, id)
		if err != nil {
			return err
		}
		if err := s.advance(tx, st, target, nil); err != nil {
			return err
		}
		moved = st
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.revalidate(moved.Slug)
	return moved, nil
}

// advance applies a checked status change with a conditional update, so a
// concurrent writer that already moved the stage makes this one fail.
func (s *StageModule) advance(tx *gorm.DB, st *models.Stage, target models.StageStatus, extra map[string]interface{}) error {
	if !CanTransitionTo(st.Status, target) {
		return &IllegalTransitionError{StageID: st.ID, From: st.Status, To: target}
	}

	updates := map[string]interface{}{
		"status":     target,
		"updated_at": s.now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	res := tx.Model(&models.Stage{}).
		Where("id = ? AND status = ?", st.ID, st.Status).
		Updates(updates)
	if res.Error != nil {
		return &common.PersistenceError{Op: "update stage status", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		current, err := loadStage(tx, st.ID)
		if err != nil {
			return err
		}
		return &IllegalTransitionError{StageID: st.ID, From: current.Status, To: target}
	}

	st.Status = target
	if p, ok := extra["progress"].(int); ok {
		st.Progress = p
	}
	return nil
}

func (s *StageModule) revalidate(slug string) {
	if s.revalidator == nil {
		return
	}
	if err := s.revalidator.Revalidate(slug); err != nil {
		log.Warn().Err(err).Str("slug", slug).Msg("revalidation failed")
	}
}

func normalizeTitle(title *string) *string {
	if title == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*title)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
