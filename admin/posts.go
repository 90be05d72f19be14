package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"donusum/posts"
)

func (a *AdminModule) listStagePosts(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}

	if _, err := a.Stages.Get(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	list, err := a.Posts.ListForStage(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *AdminModule) createPost(c *gin.Context) {
	var req posts.NewPost
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Geçersiz gönderi: " + err.Error()})
		return
	}

	post, err := a.Posts.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (a *AdminModule) publishPost(c *gin.Context) {
	post, err := a.Posts.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (a *AdminModule) unpublishPost(c *gin.Context) {
	post, err := a.Posts.Unpublish(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (a *AdminModule) deletePost(c *gin.Context) {
	if err := a.Posts.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
