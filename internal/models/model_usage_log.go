package models

import "time"

// UsageLog is append-only; rows are never updated in the request path.
// Daily quota checks count rows by created_at, so the index keeps the
// count-since-midnight query off a sequential scan.
type UsageLog struct {
	ID     string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string `gorm:"column:user_id;type:uuid;not null;index:idx_usage_user_created,priority:1" json:"user_id"`
	Action string `gorm:"column:action;type:varchar(50);not null" json:"action"`
	Tone   string `gorm:"column:tone;type:varchar(50)" json:"tone"`
	// Message bodies are truncated before insert; quota only needs the row.
	OriginalMessage  string    `gorm:"column:original_message;type:text" json:"original_message"`
	RewrittenMessage string    `gorm:"column:rewritten_message;type:text" json:"rewritten_message"`
	CreatedAt        time.Time `gorm:"index:idx_usage_user_created,priority:2" json:"created_at"`
}

func (UsageLog) TableName() string { return "usage_logs" }
