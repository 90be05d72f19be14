package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"donusum/models"
	"donusum/stage"
)

func (a *AdminModule) listStages(c *gin.Context) {
	stages, err := a.Stages.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stages)
}

type createStageRequest struct {
	Slug          string   `json:"slug" binding:"required"`
	Title         string   `json:"title" binding:"required"`
	Description   string   `json:"description"`
	Icon          string   `json:"icon"`
	SequenceOrder *float64 `json:"sequenceOrder"`
	IsVisible     *bool    `json:"isVisible"`
	AutoPostTitle *string  `json:"autoPostTitle"`
}

func (a *AdminModule) createStage(c *gin.Context) {
	var req createStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Geçersiz aşama: " + err.Error()})
		return
	}

	visible := true
	if req.IsVisible != nil {
		visible = *req.IsVisible
	}

	st, err := a.Stages.Create(c.Request.Context(), stage.NewStage{
		Slug:          req.Slug,
		Title:         req.Title,
		Description:   req.Description,
		Icon:          req.Icon,
		SequenceOrder: req.SequenceOrder,
		IsVisible:     visible,
		AutoPostTitle: req.AutoPostTitle,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

type updateStageRequest struct {
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	IsVisible     *bool   `json:"isVisible"`
	Progress      *int    `json:"progress"`
	AutoPostTitle *string `json:"autoPostTitle"`
}

func (a *AdminModule) updateStage(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}

	var req updateStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Geçersiz istek"})
		return
	}

	st, err := a.Stages.Update(c.Request.Context(), id, stage.StageUpdate{
		Title:         req.Title,
		Description:   req.Description,
		IsVisible:     req.IsVisible,
		Progress:      req.Progress,
		AutoPostTitle: req.AutoPostTitle,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

type transitionRequest struct {
	Status models.StageStatus `json:"status" binding:"required"`
}

func (a *AdminModule) transitionStage(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}

	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Durum gerekli", "field": "status"})
		return
	}

	if req.Status == models.StageCompleted {
		a.complete(c, id)
		return
	}

	st, err := a.Stages.Transition(c.Request.Context(), id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (a *AdminModule) completeStage(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	a.complete(c, id)
}

func (a *AdminModule) complete(c *gin.Context, id int) {
	done, err := a.Stages.Complete(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	a.notifyDraft(done)

	c.JSON(http.StatusOK, gin.H{
		"message": done.Message(),
		"stage":   done.Stage,
		"post":    done.Post,
	})
}

// notifyDraft mails the operator in the background. Delivery problems are
// only logged.
func (a *AdminModule) notifyDraft(done *stage.Completion) {
	if !a.Email.Enabled() || a.OperatorEmail == "" {
		return
	}
	go func() {
		if err := a.Email.SendDraftAnnouncementNotice(a.OperatorEmail, done.Stage, done.Post); err != nil {
			log.Warn().Err(err).Int("stage_id", done.Stage.ID).Msg("draft announcement notice not sent")
		}
	}()
}

func (a *AdminModule) toggleVisibility(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}

	st, err := a.Stages.ToggleVisibility(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
