package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	visitorCookie = "donusum_ziyaretci"
	visitThrottle = 30 * time.Minute
)

// StageEvent is one counted visit to a public stage page.
type StageEvent struct {
	ID        uint      `gorm:"primary_key;autoIncrement"`
	StageSlug string    `gorm:"not null;index"`
	CookieID  string    `gorm:"not null;index"`
	Event     string    `gorm:"not null;default:'visit'"`
	IP        string    `gorm:"not null"`
	Language  *string
	Browser   *string
	CreatedAt time.Time `gorm:"index"`
}

// AnalyticsModule counts stage page visits in its own database. A nil
// module is valid and records nothing.
type AnalyticsModule struct {
	db      *gorm.DB
	now     func() time.Time
	pending sync.WaitGroup
}

func NewAnalyticsModule(db *gorm.DB) *AnalyticsModule {
	if db == nil {
		log.Info().Msg("analytics database not configured, visit tracking disabled")
		return nil
	}

	if err := db.AutoMigrate(&StageEvent{}); err != nil {
		log.Error().Err(err).Msg("migrating stage_events failed, visit tracking disabled")
		return nil
	}

	log.Info().Msg("analytics module initialized")
	return &AnalyticsModule{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// TrackVisit records a visit to the stage page unless the same visitor
// already visited it within the last 30 minutes. The insert runs in the
// background; Wait blocks until pending inserts are done.
func (a *AnalyticsModule) TrackVisit(c *gin.Context, slug string) {
	if a == nil || a.db == nil {
		return
	}

	cookieID := a.getOrCreateCookieID(c)
	now := a.now()

	var count int64
	err := a.db.Model(&StageEvent{}).
		Where("cookie_id = ? AND stage_slug = ? AND created_at > ?", cookieID, slug, now.Add(-visitThrottle)).
		Count(&count).Error
	if err != nil {
		log.Warn().Err(err).Msg("visit throttle lookup failed")
		return
	}
	if count > 0 {
		return
	}

	event := StageEvent{
		StageSlug: slug,
		CookieID:  cookieID,
		Event:     "visit",
		IP:        clientIP(c),
		Language:  extractLanguage(c.GetHeader("Accept-Language")),
		Browser:   extractBrowser(c.Request.UserAgent()),
		CreatedAt: now,
	}

	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		if err := a.db.Create(&event).Error; err != nil {
			log.Error().Err(err).Str("slug", slug).Msg("saving visit failed")
		}
	}()
}

// Wait blocks until every background insert has finished.
func (a *AnalyticsModule) Wait() {
	if a == nil {
		return
	}
	a.pending.Wait()
}

func (a *AnalyticsModule) getOrCreateCookieID(c *gin.Context) string {
	if cookie, err := c.Cookie(visitorCookie); err == nil && cookie != "" {
		return cookie
	}

	data := time.Now().String() + c.ClientIP() + c.Request.UserAgent()
	hash := sha256.Sum256([]byte(data))
	cookieID := hex.EncodeToString(hash[:])

	c.SetCookie(visitorCookie, cookieID, 60*60*24*365*2, "/", "", false, true)
	return cookieID
}

// clientIP prefers proxy headers over the socket address.
func clientIP(c *gin.Context) string {
	if ip := c.GetHeader("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := c.GetHeader("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := c.GetHeader("CF-Connecting-IP"); ip != "" {
		return ip
	}
	return c.ClientIP()
}

func extractBrowser(userAgent string) *string {
	if userAgent == "" {
		return nil
	}

	ua := strings.ToLower(userAgent)
	var browser string

	// more specific engines first
	switch {
	case strings.Contains(ua, "edg"):
		browser = "Edge"
	case strings.Contains(ua, "opera") || strings.Contains(ua, "opr"):
		browser = "Opera"
	case strings.Contains(ua, "chrome"):
		browser = "Chrome"
	case strings.Contains(ua, "safari"):
		browser = "Safari"
	case strings.Contains(ua, "firefox"):
		browser = "Firefox"
	case strings.Contains(ua, "msie") || strings.Contains(ua, "trident"):
		browser = "Internet Explorer"
	default:
		browser = "Other"
	}
	return &browser
}

// extractLanguage keeps the most preferred tag of an Accept-Language header.
func extractLanguage(acceptLang string) *string {
	if acceptLang == "" {
		return nil
	}
	lang := strings.TrimSpace(strings.Split(acceptLang, ",")[0])
	lang = strings.Split(lang, ";")[0]
	return &lang
}

type DayVisits struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type StageVisits struct {
	StageSlug string `json:"stageSlug"`
	Count     int64  `json:"count"`
}

// VisitsByDay returns one entry per day for the last days days, oldest
// first, with zero for days without visits.
func (a *AnalyticsModule) VisitsByDay(days int) []DayVisits {
	if a == nil || a.db == nil || days <= 0 {
		return []DayVisits{}
	}

	now := a.now().UTC()
	startDate := now.AddDate(0, 0, -(days - 1)).Truncate(24 * time.Hour)

	var results []DayVisits
	err := a.db.Model(&StageEvent{}).
		Select("DATE(created_at) as date, COUNT(*) as count").
		Where("created_at >= ?", startDate).
		Group("DATE(created_at)").
		Order("date ASC").
		Scan(&results).Error
	if err != nil {
		log.Warn().Err(err).Msg("loading visits by day failed")
	}

	counts := make(map[string]int64, len(results))
	for _, r := range results {
		counts[r.Date] = r.Count
	}

	dayVisits := make([]DayVisits, days)
	for i := 0; i < days; i++ {
		date := now.AddDate(0, 0, -(days - 1 - i)).Format("2006-01-02")
		dayVisits[i] = DayVisits{Date: date, Count: counts[date]}
	}
	return dayVisits
}

// TopStages returns the most visited stage pages of the last days days.
func (a *AnalyticsModule) TopStages(days, limit int) []StageVisits {
	if a == nil || a.db == nil {
		return []StageVisits{}
	}

	startDate := a.now().AddDate(0, 0, -days)

	var results []StageVisits
	err := a.db.Model(&StageEvent{}).
		Select("stage_slug, COUNT(*) as count").
		Where("created_at >= ?", startDate).
		Group("stage_slug").
		Order("count DESC").
		Order("stage_slug ASC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		log.Warn().Err(err).Msg("loading top stages failed")
	}
	if results == nil {
		results = []StageVisits{}
	}
	return results
}
