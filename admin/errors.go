package admin

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"donusum/blocks"
	"donusum/common"
	"donusum/stage"
)

// respondError maps module errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var (
		validation *blocks.ValidationError
		invalid    *common.InvalidInputError
		notFound   *common.NotFoundError
		illegal    *stage.IllegalTransitionError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": validation.Field})
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": invalid.Field})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &illegal):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "from": illegal.From, "to": illegal.To})
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Beklenmeyen bir hata oluştu"})
	}
}

func intParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Geçersiz kimlik", "field": name})
		return 0, false
	}
	return id, true
}
