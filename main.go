package main

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"donusum/admin"
	"donusum/analytics"
	"donusum/cache"
	"donusum/common"
	"donusum/content"
	"donusum/database"
	"donusum/email"
	"donusum/posts"
	"donusum/site"
	"donusum/stage"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	common.SetupLogger(cfg.LogLevel, cfg.LogPretty)

	db := common.ConnectDb(cfg.DBFile)
	if db == nil {
		log.Fatal().Msg("failed to connect to database")
	}

	if err := database.RunMigrations(db); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if err := admin.EnsureOperator(db, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			log.Fatal().Err(err).Msg("failed to create operator account")
		}
	} else {
		log.Warn().Msg("ADMIN_EMAIL or ADMIN_PASSWORD not set, operator account not provisioned")
	}

	store := cache.NewStore(cfg.CacheDir, cfg.CacheMaxAge)
	if err := store.ClearOld(); err != nil {
		log.Warn().Err(err).Msg("clearing old cache entries failed")
	}

	analyticsModule := analytics.NewAnalyticsModule(common.ConnectAnalyticsDb(cfg.AnalyticsDB))
	contentModule := content.NewContentModule(db, store)
	stageModule := stage.NewStageModule(db, store)
	postModule := posts.NewPostModule(db, store)

	mailer := email.NewEmailService(cfg.Domain)
	if !mailer.Enabled() {
		log.Info().Msg("SMTP not configured, operator notifications disabled")
	}

	router := gin.New()
	router.Use(gin.Recovery(), common.RequestLogger())

	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   false,
	})
	router.Use(sessions.Sessions("donusum-session", sessionStore))

	adminModule := admin.NewAdminModule(db, admin.Services{
		Content:       contentModule,
		Stages:        stageModule,
		Posts:         postModule,
		Cache:         store,
		Analytics:     analyticsModule,
		Email:         mailer,
		OperatorEmail: cfg.OperatorEmail,
	})
	adminModule.RegisterRoutes(router)

	siteModule := site.NewSiteModule(stageModule, contentModule, postModule, store, analyticsModule, cfg.Domain)
	siteModule.RegisterRoutes(router)

	log.Info().Str("port", cfg.Port).Msg("starting server")
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}
