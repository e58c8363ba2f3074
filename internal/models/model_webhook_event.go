package models

import (
	"time"

	"github.com/bossbuddy/billing/pkg/types"

	"gorm.io/datatypes"
)

// WebhookEvent is the durable log of inbound provider events.
// Rows are inserted (unprocessed) before any state is applied, so a crash
// between verification and apply leaves a replayable record. The unique
// index on (provider, event_id) makes replayed deliveries no-ops.
type WebhookEvent struct {
	ID       string                `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Provider types.PaymentProvider `gorm:"column:provider;type:varchar(20);not null;uniqueIndex:unique_provider_event,priority:1" json:"provider"`
	// EventID is the provider-issued identifier, the dedup key.
	EventID   string `gorm:"column:event_id;type:varchar(128);not null;uniqueIndex:unique_provider_event,priority:2" json:"event_id"`
	EventType string `gorm:"column:event_type;type:varchar(100);not null" json:"event_type"`
	// RawPayload is the untouched request body.
	RawPayload datatypes.JSON `gorm:"column:raw_payload;type:jsonb" json:"raw_payload"`
	Processed  bool           `gorm:"column:processed;not null;default:false;index" json:"processed"`
	// Result stores the apply outcome (or error) for operator review.
	Result     *datatypes.JSON `gorm:"column:result;type:jsonb" json:"result"`
	TraceID    string          `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	ReceivedAt time.Time       `gorm:"column:received_at;not null" json:"received_at"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (WebhookEvent) TableName() string { return "payment_events" }
