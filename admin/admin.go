package admin

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"donusum/analytics"
	"donusum/cache"
	"donusum/content"
	emailpkg "donusum/email"
	"donusum/models"
	"donusum/posts"
	"donusum/stage"
)

const (
	sessionOperatorKey = "operator_id"
	passwordCost       = 12
)

// Services groups the modules the operator API drives.
type Services struct {
	Content       *content.ContentModule
	Stages        *stage.StageModule
	Posts         *posts.PostModule
	Cache         *cache.Store
	Analytics     *analytics.AnalyticsModule
	Email         *emailpkg.EmailService
	OperatorEmail string
}

type AdminModule struct {
	db *gorm.DB
	Services
}

func NewAdminModule(db *gorm.DB, services Services) *AdminModule {
	return &AdminModule{
		db:       db,
		Services: services,
	}
}

func (a *AdminModule) RegisterRoutes(router *gin.Engine) {
	router.POST("/giris", a.loginPost)
	router.GET("/cikis", a.logout)

	api := router.Group("/admin/api")
	api.Use(a.requireAuth)
	{
		api.GET("/sayfa/:slug", a.getPage)
		api.PUT("/sayfa/:slug", a.savePage)
		api.POST("/sayfa/:slug/sablon", a.setTemplate)
		api.GET("/sablonlar", a.listTemplates)
		api.POST("/sayfa/:slug/sablondan/:template", a.applyTemplate)

		api.GET("/asamalar", a.listStages)
		api.POST("/asamalar", a.createStage)
		api.PATCH("/asamalar/:id", a.updateStage)
		api.POST("/asamalar/:id/durum", a.transitionStage)
		api.POST("/asamalar/:id/tamamla", a.completeStage)
		api.POST("/asamalar/:id/gorunurluk", a.toggleVisibility)
		api.GET("/asamalar/:id/gonderiler", a.listStagePosts)

		api.POST("/gonderiler", a.createPost)
		api.POST("/gonderiler/:id/yayinla", a.publishPost)
		api.POST("/gonderiler/:id/yayindan-kaldir", a.unpublishPost)
		api.DELETE("/gonderiler/:id", a.deletePost)

		api.POST("/onbellek/temizle", a.clearCache)
		api.GET("/ziyaretler", a.visits)
	}
}

func (a *AdminModule) requireAuth(c *gin.Context) {
	session := sessions.Default(c)
	operatorID := session.Get(sessionOperatorKey)

	if operatorID == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Oturum açmanız gerekiyor"})
		return
	}

	c.Set(sessionOperatorKey, operatorID)
	c.Next()
}

type loginRequest struct {
	Email    string `form:"email" json:"email" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

func (a *AdminModule) loginPost(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "E-posta ve şifre gerekli"})
		return
	}

	var operator models.Operator
	err := a.db.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&operator).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error().Err(err).Msg("loading operator failed")
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "E-posta veya şifre hatalı"})
		return
	}

	if !checkPasswordHash(req.Password, operator.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "E-posta veya şifre hatalı"})
		return
	}

	session := sessions.Default(c)
	session.Set(sessionOperatorKey, operator.ID)
	if err := session.Save(); err != nil {
		log.Error().Err(err).Msg("saving session failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Oturum açılamadı"})
		return
	}

	log.Info().Str("email", operator.Email).Msg("operator logged in")
	c.JSON(http.StatusOK, gin.H{"email": operator.Email})
}

func (a *AdminModule) logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Save()

	c.JSON(http.StatusOK, gin.H{"message": "Oturum kapatıldı"})
}

// EnsureOperator creates the operator account, or resets its password when
// it already exists.
func EnsureOperator(db *gorm.DB, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return errors.New("operator email and password are required")
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}

	var operator models.Operator
	err = db.Where("email = ?", email).First(&operator).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		operator = models.Operator{Email: email, PasswordHash: hash}
		return db.Create(&operator).Error
	case err != nil:
		return err
	}
	return db.Model(&operator).Update("password_hash", hash).Error
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	return string(bytes), err
}

func checkPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// visits reports stage page visits for the dashboard chart.
func (a *AdminModule) visits(c *gin.Context) {
	if a.Analytics == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"enabled":     true,
		"visitsByDay": a.Analytics.VisitsByDay(15),
		"topStages":   a.Analytics.TopStages(30, 10),
	})
}

func (a *AdminModule) clearCache(c *gin.Context) {
	if a.Cache == nil {
		c.JSON(http.StatusOK, gin.H{"message": "Önbellek kapalı"})
		return
	}
	if err := a.Cache.ClearAll(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Önbellek temizlendi"})
}
