package content

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"donusum/blocks"
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

	require.NoError(t, db.AutoMigrate(&models.Stage{}, &models.PageContent{}))
	return db
}

type recordingRevalidator struct {
	slugs []string
}

func (r *recordingRevalidator) Revalidate(slug string) error {
	r.slugs = append(r.slugs, slug)
	return nil
}

func decodeBlocks(t *testing.T, raw string) []blocks.Block {
	t.Helper()
	var list []blocks.Block
	require.NoError(t, json.Unmarshal([]byte(raw), &list))
	return list
}

func TestSaveAndGet_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	rev := &recordingRevalidator{}
	module := NewContentModule(db, rev)
	ctx := context.Background()

	list := decodeBlocks(t, `[
		{"id":"a","type":"divider","order":0,"data":{}},
		{"id":"b","type":"hero","order":1,"data":{"title":"T"}}
	]`)
	require.NoError(t, module.Save(ctx, "on-teklif", list))

	doc, err := module.Get(ctx, "on-teklif")
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.Len(t, doc.Blocks, 2)

	assert.Equal(t, "a", doc.Blocks[0].ID)
	assert.Equal(t, blocks.TypeDivider, doc.Blocks[0].Type)
	assert.Equal(t, 0, doc.Blocks[0].Order)

	assert.Equal(t, "b", doc.Blocks[1].ID)
	assert.Equal(t, 1, doc.Blocks[1].Order)
	hero, ok := doc.Blocks[1].Data.(*blocks.Hero)
	require.True(t, ok)
	assert.Equal(t, "T", hero.Title)
	assert.Equal(t, "public", hero.Visibility)
	assert.Equal(t, "centered", hero.Layout)
	assert.Equal(t, "medium", hero.Spacing)

	assert.Nil(t, doc.StageOrder)
	assert.False(t, doc.IsTemplate)
	assert.Equal(t, []string{"on-teklif"}, rev.slugs)
}

func TestGet_MissingSlugIsNotAnError(t *testing.T) {
	db := setupTestDB(t)
	module := NewContentModule(db, nil)

	doc, err := module.Get(context.Background(), "yok")
	assert.NoError(t, err)
	assert.Nil(t, doc)
}

func TestSave_InvalidBlockRejectsWholeDocument(t *testing.T) {
	db := setupTestDB(t)
	module := NewContentModule(db, nil)
	ctx := context.Background()

	before := decodeBlocks(t, `[{"id":"a","type":"divider","order":0,"data":{}}]`)
	require.NoError(t, module.Save(ctx, "on-teklif", before))

	bad := []blocks.Block{
		{ID: "h", Type: blocks.TypeHero, Data: &blocks.Hero{Title: "Yeni"}},
		{ID: "s", Type: blocks.TypeSurvey, Data: &blocks.Survey{Question: "Q"}},
	}
	err := module.Save(ctx, "on-teklif", bad)
	var verr *blocks.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "blocks[1].options", verr.Field)

	doc, err := module.Get(ctx, "on-teklif")
	require.NoError(t, err)
	require.Len(t, doc.Blocks, 1)
	assert.Equal(t, "a", doc.Blocks[0].ID)
}

func TestSave_InvalidBlockOnNewSlugCreatesNothing(t *testing.T) {
	db := setupTestDB(t)
	module := NewContentModule(db, nil)
	ctx := context.Background()

	err := module.Save(ctx, "yeni", []blocks.Block{{ID: "x", Type: "carousel"}})
	var verr *blocks.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "blocks[0].type", verr.Field)

	doc, err := module.Get(ctx, "yeni")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestSave_ReplacesWholeListAndKeepsSequence(t *testing.T) {
	db := setupTestDB(t)
	module := NewContentModule(db, nil)
	ctx := context.Background()

	require.NoError(t, module.Save(ctx, "sozlesme", decodeBlocks(t, `[
		{"id":"a","type":"divider","order":0,"data":{}},
		{"id":"b","type":"divider","order":1,"data":{}},
		{"id":"c","type":"divider","order":2,"data":{}}
	]`)))

	// order values deliberately disagree with the sequence; the sequence wins
	require.NoError(t, module.Save(ctx, "sozlesme", decodeBlocks(t, `[
		{"id":"c","type":"divider","order":7,"data":{}},
		{"id":"a","type":"image","order":1,"data":{"url":"/uploads/plan.png"}},
		{"id":"a","type":"divider","order":3,"data":{}}
	]`)))

	doc, err := module.Get(ctx, "sozlesme")
	require.NoError(t, err)
	require.Len(t, doc.Blocks, 3)
	ids := []string{doc.Blocks[0].ID, doc.Blocks[1].ID, doc.Blocks[2].ID}
	orders := []int{doc.Blocks[0].Order, doc.Blocks[1].Order, doc.Blocks[2].Order}
	assert.Equal(t, []string{"c", "a", "a"}, ids)
	assert.Equal(t, []int{7, 1, 3}, orders)
	assert.Equal(t, blocks.TypeImage, doc.Blocks[1].Type)

	var count int64
	db.Model(&models.PageContent{}).Where("slug = ?", "sozlesme").Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestSave_EmptyListClearsDocument(t *testing.T) {
	db := setupTestDB(t)
	module := NewContentModule(db, nil)
	ctx := context.Background()

	require.NoError(t, module.Save(ctx, "insaat", decodeBlocks(t, `[{"id":"a","type":"divider","data":{}}]`)))
	require.NoError(t, module.Save(ctx, "insaat", nil))

	doc, err := module.Get(ctx, "insaat")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Empty(t, doc.Blocks)
	assert.NotNil(t, doc.Blocks)
}

func TestSave_GeneratesMissingIDs(t *testing.T) {
	db := setupTestDB(t)
	module := NewContentModule(db, nil)
	ctx := context.Background()

	require.NoError(t, module.Save(ctx, "insaat", []blocks.Block{{Type: blocks.TypeDivider}}))

	doc, err := module.Get(ctx, "insaat")
	require.NoError(t, err)
	assert.NotEmpty(t, doc.Blocks[0].ID)
}

func TestSave_RequiresSlug(t *testing.T) {
	db := setupTestDB(t)
	module := NewContentModule(db, nil)

	err := module.Save(context.Background(), "  ", nil)
	var invalid *common.InvalidInputError
	assert.True(t, errors.As(err, &invalid))

	for _, slug := range []string{"a&b", "sayfa/alt", "SSS"} {
		err = module.Save(context.Background(), slug, nil)
		require.True(t, errors.As(err, &invalid), slug)
		assert.Equal(t, "slug", invalid.Field)
	}

	var count int64
	require.NoError(t, db.Model(&models.PageContent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGet_StageOrderFollowsStage(t *testing.T) {
	db := setupTestDB(t)
	module := NewContentModule(db, nil)
	ctx := context.Background()

	st := &models.Stage{Slug: "sozlesme", Title: "Sözleşme", Status: models.StageActive, SequenceOrder: 5, IsVisible: true}
	require.NoError(t, db.Create(st).Error)
	require.NoError(t, module.Save(ctx, "sozlesme", nil))

	doc, err := module.Get(ctx, "sozlesme")
	require.NoError(t, err)
	require.NotNil(t, doc.StageOrder)
	assert.Equal(t, 5.0, *doc.StageOrder)

	require.NoError(t, db.Model(st).Update("sequence_order", 4.5).Error)
	doc, err = module.Get(ctx, "sozlesme")
	require.NoError(t, err)
	assert.Equal(t, 4.5, *doc.StageOrder)
}

func TestTemplates(t *testing.T) {
	db := setupTestDB(t)
	module := NewContentModule(db, nil)
	ctx := context.Background()

	require.NoError(t, module.Save(ctx, "sablon-asama", decodeBlocks(t, `[
		{"id":"t1","type":"hero","order":0,"data":{"title":"Aşama"}},
		{"id":"t2","type":"divider","order":1,"data":{}}
	]`)))

	err := module.ApplyTemplate(ctx, "sablon-asama", "yikim")
	var invalid *common.InvalidInputError
	require.True(t, errors.As(err, &invalid))

	require.NoError(t, module.SetTemplate(ctx, "sablon-asama", true))

	// saving again keeps the template flag
	require.NoError(t, module.Save(ctx, "sablon-asama", decodeBlocks(t, `[
		{"id":"t1","type":"hero","order":0,"data":{"title":"Aşama"}},
		{"id":"t2","type":"divider","order":1,"data":{}}
	]`)))
	templates, err := module.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "sablon-asama", templates[0].Slug)

	require.NoError(t, module.ApplyTemplate(ctx, "sablon-asama", "yikim"))
	doc, err := module.Get(ctx, "yikim")
	require.NoError(t, err)
	require.Len(t, doc.Blocks, 2)
	assert.False(t, doc.IsTemplate)
	assert.Equal(t, blocks.TypeHero, doc.Blocks[0].Type)
	assert.NotEqual(t, "t1", doc.Blocks[0].ID)

	var notFound *common.NotFoundError
	assert.True(t, errors.As(module.SetTemplate(ctx, "yok", true), &notFound))
	assert.True(t, errors.As(module.ApplyTemplate(ctx, "yok", "yikim"), &notFound))
}
