package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"donusum/blocks"
)

func (a *AdminModule) getPage(c *gin.Context) {
	slug := c.Param("slug")

	doc, err := a.Content.Get(c.Request.Context(), slug)
	if err != nil {
		respondError(c, err)
		return
	}
	if doc == nil {
		c.JSON(http.StatusOK, gin.H{"slug": slug, "blocks": []blocks.Block{}, "isTemplate": false})
		return
	}
	c.JSON(http.StatusOK, doc)
}

type savePageRequest struct {
	Blocks []json.RawMessage `json:"blocks"`
}

func (a *AdminModule) savePage(c *gin.Context) {
	var req savePageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Geçersiz içerik: " + err.Error()})
		return
	}

	list, err := decodeBlocks(req.Blocks)
	if err != nil {
		respondError(c, err)
		return
	}

	slug := c.Param("slug")
	if err := a.Content.Save(c.Request.Context(), slug, list); err != nil {
		respondError(c, err)
		return
	}

	doc, err := a.Content.Get(c.Request.Context(), slug)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// decodeBlocks decodes each block on its own so a validation failure can
// name the block index.
func decodeBlocks(raw []json.RawMessage) ([]blocks.Block, error) {
	list := make([]blocks.Block, 0, len(raw))
	for i, item := range raw {
		var b blocks.Block
		if err := json.Unmarshal(item, &b); err != nil {
			var verr *blocks.ValidationError
			if errors.As(err, &verr) {
				return nil, &blocks.ValidationError{Field: fmt.Sprintf("blocks[%d].%s", i, verr.Field), Reason: verr.Reason}
			}
			return nil, &blocks.ValidationError{Field: fmt.Sprintf("blocks[%d]", i), Reason: err.Error()}
		}
		list = append(list, b)
	}
	return list, nil
}

type templateRequest struct {
	IsTemplate bool `json:"isTemplate"`
}

func (a *AdminModule) setTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Geçersiz istek"})
		return
	}

	if err := a.Content.SetTemplate(c.Request.Context(), c.Param("slug"), req.IsTemplate); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slug": c.Param("slug"), "isTemplate": req.IsTemplate})
}

func (a *AdminModule) listTemplates(c *gin.Context) {
	docs, err := a.Content.ListTemplates(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (a *AdminModule) applyTemplate(c *gin.Context) {
	slug := c.Param("slug")
	if err := a.Content.ApplyTemplate(c.Request.Context(), c.Param("template"), slug); err != nil {
		respondError(c, err)
		return
	}

	doc, err := a.Content.Get(c.Request.Context(), slug)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}
