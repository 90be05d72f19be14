package stage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"donusum/common"
	"donusum/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		panic("failed to connect database")
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Stage{}, &models.Post{}))
	return db
}

type recordingRevalidator struct {
	mu    sync.Mutex
	slugs []string
}

func (r *recordingRevalidator) Revalidate(slug string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slugs = append(r.slugs, slug)
	return nil
}

func createTestStage(t *testing.T, db *gorm.DB, id int, title string, status models.StageStatus) *models.Stage {
	st := &models.Stage{
		ID:            id,
		Slug:          "stage-" + title,
		Title:         title,
		Status:        status,
		SequenceOrder: float64(id),
		IsVisible:     true,
	}
	require.NoError(t, db.Create(st).Error)
	return st
}

func countPosts(t *testing.T, db *gorm.DB, stageID int) int64 {
	var n int64
	require.NoError(t, db.Model(&models.Post{}).Where("stage_id = ?", stageID).Count(&n).Error)
	return n
}

func TestComplete_Success(t *testing.T) {
	db := setupTestDB(t)
	rev := &recordingRevalidator{}
	module := NewStageModule(db, rev)
	createTestStage(t, db, 5, "Sözleşme", models.StageActive)

	done, err := module.Complete(context.Background(), 5)
	require.NoError(t, err)
	assert.Contains(t, done.Message(), "Sözleşme")

	var st models.Stage
	require.NoError(t, db.First(&st, 5).Error)
	assert.Equal(t, models.StageCompleted, st.Status)
	assert.Equal(t, 100, st.Progress)

	var posts []models.Post
	require.NoError(t, db.Where("stage_id = ?", 5).Find(&posts).Error)
	require.Len(t, posts, 1)
	assert.Equal(t, models.PostAnnouncement, posts[0].Type)
	assert.False(t, posts[0].IsPublished)
	assert.Nil(t, posts[0].PublishedAt)
	assert.Equal(t, "Bilgilendirme: Sözleşme Aşaması Tamamlandı", posts[0].Title)
	assert.Contains(t, string(posts[0].Content), "Sözleşme")
	assert.NotEmpty(t, posts[0].ID)

	assert.Equal(t, []string{"stage-Sözleşme"}, rev.slugs)
}

func TestComplete_UsesAutoPostTitle(t *testing.T) {
	db := setupTestDB(t)
	module := NewStageModule(db, nil)
	st := createTestStage(t, db, 3, "Ön Teklif", models.StageActive)
	custom := "Ön teklif süreci sona erdi"
	require.NoError(t, db.Model(st).Update("auto_post_title", custom).Error)

	done, err := module.Complete(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, custom, done.Post.Title)
}

func TestComplete_LockedStageIsIllegal(t *testing.T) {
	db := setupTestDB(t)
	rev := &recordingRevalidator{}
	module := NewStageModule(db, rev)
	createTestStage(t, db, 5, "Sözleşme", models.StageLocked)

	_, err := module.Complete(context.Background(), 5)
	var illegal *IllegalTransitionError
	require.True(t, errors.As(err, &illegal))
	assert.Equal(t, models.StageLocked, illegal.From)

	var st models.Stage
	require.NoError(t, db.First(&st, 5).Error)
	assert.Equal(t, models.StageLocked, st.Status)
	assert.Equal(t, 0, st.Progress)
	assert.Equal(t, int64(0), countPosts(t, db, 5))
	assert.Empty(t, rev.slugs)
}

func TestComplete_AlreadyCompleted(t *testing.T) {
	db := setupTestDB(t)
	module := NewStageModule(db, nil)
	createTestStage(t, db, 2, "Tespit", models.StageActive)

	_, err := module.Complete(context.Background(), 2)
	require.NoError(t, err)

	_, err = module.Complete(context.Background(), 2)
	var illegal *IllegalTransitionError
	require.True(t, errors.As(err, &illegal))
	assert.Equal(t, models.StageCompleted, illegal.From)
	assert.Equal(t, int64(1), countPosts(t, db, 2))
}

func TestComplete_NotFound(t *testing.T) {
	db := setupTestDB(t)
	module := NewStageModule(db, nil)

	_, err := module.Complete(context.Background(), 99)
	var notFound *common.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "99", notFound.Key)
}

func TestComplete_RollsBackWhenPostCreationFails(t *testing.T) {
	db := setupTestDB(t)
	module := NewStageModule(db, nil)
	createTestStage(t, db, 5, "Sözleşme", models.StageActive)

	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_posts", func(tx *gorm.DB) {
		if tx.Statement.Table == "posts" {
			tx.AddError(errors.New("disk full"))
		}
	}))

	_, err := module.Complete(context.Background(), 5)
	var persistence *common.PersistenceError
	require.True(t, errors.As(err, &persistence))

	var st models.Stage
	require.NoError(t, db.First(&st, 5).Error)
	assert.Equal(t, models.StageActive, st.Status)
	assert.Equal(t, 0, st.Progress)
	assert.Equal(t, int64(0), countPosts(t, db, 5))
}

func TestComplete_ConcurrentCallsCreateOneAnnouncement(t *testing.T) {
	db := setupTestDB(t)
	module := NewStageModule(db, nil)
	createTestStage(t, db, 5, "Sözleşme", models.StageActive)

	const callers = 4
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = module.Complete(context.Background(), 5)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var illegal *IllegalTransitionError
		assert.True(t, errors.As(err, &illegal), "unexpected error %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(1), countPosts(t, db, 5))
}

func TestTransition(t *testing.T) {
	db := setupTestDB(t)
	module := NewStageModule(db, nil)
	createTestStage(t, db, 1, "Bilgilendirme", models.StageLocked)
	ctx := context.Background()

	st, err := module.Transition(ctx, 1, models.StageActive)
	require.NoError(t, err)
	assert.Equal(t, models.StageActive, st.Status)

	_, err = module.Transition(ctx, 1, models.StageLocked)
	var illegal *IllegalTransitionError
	require.True(t, errors.As(err, &illegal))

	st, err = module.Transition(ctx, 1, models.StageCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.StageCompleted, st.Status)
	assert.Equal(t, 100, st.Progress)
	assert.Equal(t, int64(1), countPosts(t, db, 1))

	_, err = module.Transition(ctx, 1, "ARCHIVED")
	var invalid *common.InvalidInputError
	require.True(t, errors.As(err, &invalid))
}

func TestTransition_StoresUpdatedAtInUTC(t *testing.T) {
	db := setupTestDB(t)
	module := NewStageModule(db, nil)
	// 14:00 +03:00 is 11:00 UTC.
	local := time.Date(2026, 3, 1, 14, 0, 0, 0, time.FixedZone("TRT", 3*60*60))
	module.now = func() time.Time { return local }
	createTestStage(t, db, 1, "Bilgilendirme", models.StageLocked)

	_, err := module.Transition(context.Background(), 1, models.StageActive)
	require.NoError(t, err)

	var later int64
	noon := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.Model(&models.Stage{}).Where("id = ? AND updated_at > ?", 1, noon).Count(&later).Error)
	assert.Zero(t, later)

	var stored models.Stage
	require.NoError(t, db.First(&stored, 1).Error)
	assert.True(t, stored.UpdatedAt.Equal(local))
}

func TestUpdate_ProgressRules(t *testing.T) {
	db := setupTestDB(t)
	module := NewStageModule(db, nil)
	createTestStage(t, db, 1, "İnşaat", models.StageActive)
	ctx := context.Background()

	sixty := 60
	st, err := module.Update(ctx, 1, StageUpdate{Progress: &sixty})
	require.NoError(t, err)
	assert.Equal(t, 60, st.Progress)

	full := 100
	_, err = module.Update(ctx, 1, StageUpdate{Progress: &full})
	var invalid *common.InvalidInputError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "progress", invalid.Field)

	tooMuch := 120
	_, err = module.Update(ctx, 1, StageUpdate{Progress: &tooMuch})
	require.True(t, errors.As(err, &invalid))
}

func TestUpdate_AutoPostTitleBlankClears(t *testing.T) {
	db := setupTestDB(t)
	module := NewStageModule(db, nil)
	createTestStage(t, db, 1, "İnşaat", models.StageActive)
	ctx := context.Background()

	title := "  Özel başlık "
	st, err := module.Update(ctx, 1, StageUpdate{AutoPostTitle: &title})
	require.NoError(t, err)
	require.NotNil(t, st.AutoPostTitle)
	assert.Equal(t, "Özel başlık", *st.AutoPostTitle)

	blank := "   "
	st, err = module.Update(ctx, 1, StageUpdate{AutoPostTitle: &blank})
	require.NoError(t, err)
	assert.Nil(t, st.AutoPostTitle)
}

func TestToggleVisibility(t *testing.T) {
	db := setupTestDB(t)
	module := NewStageModule(db, nil)
	createTestStage(t, db, 1, "Yıkım", models.StageLocked)

	st, err := module.ToggleVisibility(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, st.IsVisible)

	visible, err := module.ListVisible(context.Background())
	require.NoError(t, err)
	assert.Empty(t, visible)
}

func TestCreate_AppendsAndInserts(t *testing.T) {
	db := setupTestDB(t)
	module := NewStageModule(db, nil)
	ctx := context.Background()

	next, err := module.NextSequenceOrder(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, next)

	first, err := module.Create(ctx, NewStage{Slug: "bilgilendirme", Title: "Bilgilendirme", IsVisible: true})
	require.NoError(t, err)
	assert.Equal(t, 1.0, first.SequenceOrder)
	assert.Equal(t, models.StageLocked, first.Status)

	second, err := module.Create(ctx, NewStage{Slug: "sozlesme", Title: "Sözleşme", IsVisible: true})
	require.NoError(t, err)
	assert.Equal(t, 2.0, second.SequenceOrder)

	between := SequenceBetween(first.SequenceOrder, second.SequenceOrder)
	inserted, err := module.Create(ctx, NewStage{Slug: "on-teklif", Title: "Ön Teklif", SequenceOrder: &between, IsVisible: true})
	require.NoError(t, err)
	assert.Equal(t, 1.5, inserted.SequenceOrder)

	stages, err := module.List(ctx)
	require.NoError(t, err)
	require.Len(t, stages, 3)
	assert.Equal(t, []string{"bilgilendirme", "on-teklif", "sozlesme"}, []string{stages[0].Slug, stages[1].Slug, stages[2].Slug})

	next, err = module.NextSequenceOrder(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3.0, next)

	_, err = module.Create(ctx, NewStage{Slug: "sozlesme", Title: "Tekrar"})
	var invalid *common.InvalidInputError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "slug", invalid.Field)

	_, err = module.Create(ctx, NewStage{Slug: "baska", Title: "Başka", SequenceOrder: &between})
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "sequenceOrder", invalid.Field)
}

func TestCreateStage_RejectsMalformedSlug(t *testing.T) {
	db := setupTestDB(t)
	module := NewStageModule(db, nil)
	ctx := context.Background()

	for _, slug := range []string{"a&b", "a/b", "Buyuk", "çevre", "a--b", "-a", "a b"} {
		_, err := module.Create(ctx, NewStage{Slug: slug, Title: "Aşama"})
		var invalid *common.InvalidInputError
		require.True(t, errors.As(err, &invalid), slug)
		assert.Equal(t, "slug", invalid.Field, slug)
	}

	st, err := module.Create(ctx, NewStage{Slug: " faz-2 ", Title: "Faz 2"})
	require.NoError(t, err)
	assert.Equal(t, "faz-2", st.Slug)

	var count int64
	require.NoError(t, db.Model(&models.Stage{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestFindBySlug_Missing(t *testing.T) {
	db := setupTestDB(t)
	module := NewStageModule(db, nil)

	st, err := module.FindBySlug(context.Background(), "yok")
	assert.NoError(t, err)
	assert.Nil(t, st)
}
