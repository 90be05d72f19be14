package models

import (
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"donusum/common"
)

type PostType string

const (
	PostAnnouncement PostType = "ANNOUNCEMENT"
	PostMeeting      PostType = "MEETING"
	PostSurvey       PostType = "SURVEY"
)

// Post is an announcement, meeting or survey attached to a stage.
// IsPublished is true exactly when PublishedAt is set.
type Post struct {
	ID            string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	StageID       int            `gorm:"not null;index" json:"stageId"`
	Type          PostType       `gorm:"not null;index" json:"type"`
	Title         string         `gorm:"not null" json:"title"`
	Content       datatypes.JSON `gorm:"type:text" json:"content"`
	ImageURL      *string        `json:"imageUrl,omitempty"`
	AttachmentURL *string        `json:"attachmentUrl,omitempty"`
	IsPublished   bool           `gorm:"not null;index" json:"isPublished"`
	PublishedAt   *time.Time     `gorm:"index" json:"publishedAt"`
	EventDate     *time.Time     `gorm:"index" json:"eventDate"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// BeforeSave stores the post's own timestamps in UTC.
func (p *Post) BeforeSave(tx *gorm.DB) error {
	p.PublishedAt = common.UTCPtr(p.PublishedAt)
	p.EventDate = common.UTCPtr(p.EventDate)
	return nil
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Publish marks the post published at now. Calling it again moves
// PublishedAt forward.
func (p *Post) Publish(now time.Time) {
	now = now.UTC()
	p.IsPublished = true
	p.PublishedAt = &now
}

func (p *Post) Unpublish() {
	p.IsPublished = false
	p.PublishedAt = nil
}

// IsEvent reports whether the post type carries an event date.
func (p *Post) IsEvent() bool {
	return p.Type == PostMeeting || p.Type == PostSurvey
}

func (p *Post) IsEventPast(now time.Time) bool {
	return p.EventDate != nil && p.EventDate.Before(now)
}

func (p *Post) IsEventUpcoming(now time.Time) bool {
	return p.EventDate != nil && p.EventDate.After(now)
}

// DaysUntilEvent rounds the remaining time up to whole days. It is nil when
// the post has no event date.
func (p *Post) DaysUntilEvent(now time.Time) *int {
	if p.EventDate == nil {
		return nil
	}
	days := int(math.Ceil(p.EventDate.Sub(now).Hours() / 24))
	return &days
}
