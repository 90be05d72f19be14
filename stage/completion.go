package stage

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"donusum/common"
	"donusum/models"
)

// Completion is what Complete committed: the stage in its final state and
// the draft announcement created with it.
type Completion struct {
	Stage *models.Stage
	Post  *models.Post
}

func (c *Completion) Message() string {
	return fmt.Sprintf("%q aşaması tamamlandı, taslak duyuru oluşturuldu.", c.Stage.Title)
}

// Complete moves an ACTIVE stage to COMPLETED, sets its progress to 100 and
// drafts the matching announcement. Both writes share one transaction.
func (s *StageModule) Complete(ctx context.Context, id int) (*Completion, error) {
	var done Completion
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st, err := loadStage(tx, id)
		if err != nil {
			return err
		}

		if err := s.advance(tx, st, models.StageCompleted, map[string]interface{}{"progress": 100}); err != nil {
			return err
		}

		body, err := announcementBody(st.Title)
		if err != nil {
			return err
		}
		post := models.Post{
			StageID:     st.ID,
			Type:        models.PostAnnouncement,
			Title:       AnnouncementTitle(st),
			Content:     body,
			IsPublished: false,
		}
		if err := tx.Create(&post).Error; err != nil {
			return &common.PersistenceError{Op: "create completion announcement", Err: err}
		}

		done = Completion{Stage: st, Post: &post}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.revalidate(done.Stage.Slug)
	return &done, nil
}

// AnnouncementTitle prefers the operator's override for the stage.
func AnnouncementTitle(st *models.Stage) string {
	if t := normalizeTitle(st.AutoPostTitle); t != nil {
		return *t
	}
	return fmt.Sprintf("Bilgilendirme: %s Aşaması Tamamlandı", st.Title)
}

type richNode struct {
	Type    string     `json:"type"`
	Text    string     `json:"text,omitempty"`
	Content []richNode `json:"content,omitempty"`
}

// announcementBody builds the editor document stored as the draft's content.
func announcementBody(stageTitle string) (datatypes.JSON, error) {
	doc := richNode{
		Type: "doc",
		Content: []richNode{
			{Type: "paragraph", Content: []richNode{{
				Type: "text",
				Text: fmt.Sprintf("Kentsel dönüşüm projemizin %s aşaması başarıyla tamamlanmıştır.", stageTitle),
			}}},
			{Type: "paragraph", Content: []richNode{{
				Type: "text",
				Text: "Bir sonraki aşamaya ilişkin gelişmeleri bu sayfadan takip edebilirsiniz.",
			}}},
		},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
