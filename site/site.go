package site

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"donusum/analytics"
	"donusum/blocks"
	"donusum/cache"
	"donusum/content"
	"donusum/models"
	"donusum/posts"
	"donusum/stage"
)

const jsonContentType = "application/json; charset=utf-8"

type SiteModule struct {
	stages    *stage.StageModule
	content   *content.ContentModule
	posts     *posts.PostModule
	cache     *cache.Store
	analytics *analytics.AnalyticsModule
	domain    string
	now       func() time.Time
}

func NewSiteModule(stages *stage.StageModule, contentModule *content.ContentModule, postModule *posts.PostModule, store *cache.Store, analyticsModule *analytics.AnalyticsModule, domain string) *SiteModule {
	return &SiteModule{
		stages:    stages,
		content:   contentModule,
		posts:     postModule,
		cache:     store,
		analytics: analyticsModule,
		domain:    strings.TrimSuffix(domain, "/"),
		now:       time.Now,
	}
}

func (s *SiteModule) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.GET("/asamalar", s.cached(cache.SectionTimeline, "", jsonContentType), s.timeline)
		api.GET("/asamalar/:slug", s.trackVisit, s.cached(cache.SectionStage, "slug", jsonContentType), s.stageDetail)
		api.GET("/sayfa/:slug", s.cached(cache.SectionPage, "slug", jsonContentType), s.page)
	}
	router.GET("/sitemap.xml", s.cached(cache.SectionSitemap, "", "application/xml; charset=utf-8"), s.sitemap)
}

func (s *SiteModule) cached(section, keyParam, contentType string) gin.HandlerFunc {
	if s.cache == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return s.cache.Middleware(section, keyParam, contentType)
}

// trackVisit counts the visit before the cache can answer the request.
func (s *SiteModule) trackVisit(c *gin.Context) {
	s.analytics.TrackVisit(c, c.Param("slug"))
	c.Next()
}

type timelineItem struct {
	models.Stage
	LatestPost *models.Post `json:"latestPost"`
	NextEvent  *models.Post `json:"nextEvent"`
}

// timeline lists the visible stages with their latest post and next event.
// When the store cannot be read the built-in catalog is served instead.
func (s *SiteModule) timeline(c *gin.Context) {
	ctx := c.Request.Context()

	stages, err := s.stages.ListVisible(ctx)
	if err != nil {
		log.Error().Err(err).Msg("loading timeline failed, serving catalog")
		s.catalogTimeline(c)
		return
	}

	items := make([]timelineItem, 0, len(stages))
	for _, st := range stages {
		latest, err := s.posts.LatestForStage(ctx, st.ID)
		if err != nil {
			log.Error().Err(err).Msg("loading timeline posts failed, serving catalog")
			s.catalogTimeline(c)
			return
		}
		next, err := s.posts.NextEvent(ctx, st.ID)
		if err != nil {
			log.Error().Err(err).Msg("loading timeline events failed, serving catalog")
			s.catalogTimeline(c)
			return
		}
		items = append(items, timelineItem{Stage: st, LatestPost: latest, NextEvent: next})
	}

	c.JSON(http.StatusOK, gin.H{"stages": items, "fallback": false})
}

func (s *SiteModule) catalogTimeline(c *gin.Context) {
	entries, err := stage.Catalog()
	if err != nil {
		log.Error().Err(err).Msg("loading stage catalog failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Aşamalar şu anda yüklenemiyor"})
		return
	}

	items := make([]timelineItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, timelineItem{Stage: e.Stage()})
	}
	// no-store keeps the fallback out of the response cache
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"stages": items, "fallback": true})
}

type postView struct {
	models.Post
	IsEventPast     bool `json:"isEventPast"`
	IsEventUpcoming bool `json:"isEventUpcoming"`
	DaysUntilEvent  *int `json:"daysUntilEvent"`
}

func (s *SiteModule) stageDetail(c *gin.Context) {
	ctx := c.Request.Context()
	slug := c.Param("slug")

	st, err := s.stages.FindBySlug(ctx, slug)
	if err != nil {
		s.serverError(c, err)
		return
	}
	if st == nil || !st.IsVisible {
		c.JSON(http.StatusNotFound, gin.H{"error": "Aşama bulunamadı"})
		return
	}

	doc, err := s.content.Get(ctx, slug)
	if err != nil {
		s.serverError(c, err)
		return
	}
	pageBlocks := []blocks.Block{}
	if doc != nil {
		pageBlocks = blocks.PublicOnly(doc.Blocks)
	}

	list, err := s.posts.ForStageSlug(ctx, slug)
	if err != nil {
		s.serverError(c, err)
		return
	}
	now := s.now()
	views := make([]postView, 0, len(list))
	for i := range list {
		p := &list[i]
		views = append(views, postView{
			Post:            *p,
			IsEventPast:     p.IsEventPast(now),
			IsEventUpcoming: p.IsEventUpcoming(now),
			DaysUntilEvent:  p.DaysUntilEvent(now),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"stage":           st,
		"descriptionHtml": renderMarkdown(st.Description),
		"blocks":          pageBlocks,
		"posts":           views,
	})
}

// page serves a content document with hidden blocks left out. The page of
// a stage hidden from navigation is not served.
func (s *SiteModule) page(c *gin.Context) {
	ctx := c.Request.Context()
	slug := c.Param("slug")

	st, err := s.stages.FindBySlug(ctx, slug)
	if err != nil {
		s.serverError(c, err)
		return
	}
	if st != nil && !st.IsVisible {
		c.JSON(http.StatusNotFound, gin.H{"error": "Sayfa bulunamadı"})
		return
	}

	doc, err := s.content.Get(ctx, slug)
	if err != nil {
		s.serverError(c, err)
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Sayfa bulunamadı"})
		return
	}

	public := *doc
	public.Blocks = blocks.PublicOnly(doc.Blocks)
	c.JSON(http.StatusOK, public)
}

func (s *SiteModule) sitemap(c *gin.Context) {
	stages, err := s.stages.ListVisible(c.Request.Context())
	if err != nil {
		s.serverError(c, err)
		return
	}

	var sitemap strings.Builder
	sitemap.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	sitemap.WriteString("\n")
	sitemap.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	sitemap.WriteString("\n")

	sitemap.WriteString("  <url>\n")
	sitemap.WriteString("    <loc>" + s.domain + "/</loc>\n")
	sitemap.WriteString("    <changefreq>daily</changefreq>\n")
	sitemap.WriteString("    <priority>1.0</priority>\n")
	sitemap.WriteString("  </url>\n")

	for _, st := range stages {
		sitemap.WriteString("  <url>\n")
		sitemap.WriteString("    <loc>" + s.domain + "/asamalar/" + st.Slug + "</loc>\n")
		sitemap.WriteString("    <lastmod>" + st.UpdatedAt.Format(time.RFC3339) + "</lastmod>\n")
		sitemap.WriteString("    <changefreq>weekly</changefreq>\n")
		sitemap.WriteString("    <priority>0.8</priority>\n")
		sitemap.WriteString("  </url>\n")
	}

	sitemap.WriteString("</urlset>\n")

	c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(sitemap.String()))
}

func (s *SiteModule) serverError(c *gin.Context, err error) {
	log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("public request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Beklenmeyen bir hata oluştu"})
}
