package internal

import (
	"time"
)

// MailRecord is a synced mail row. The mail-sync service owns the table;
// this module only reads it.
type MailRecord struct {
	ID             string `gorm:"primaryKey;type:varchar(64)"`
	AccountAddress string `gorm:"type:varchar(320);index"`
	GmailMessageID string `gorm:"type:varchar(64)"`
	GmailThreadID  string `gorm:"type:varchar(64)"`
	WebToken       string `gorm:"type:varchar(128)"`
	Subject        string `gorm:"type:text"`
	FromAddress    string `gorm:"type:varchar(320)"`
	ReceivedAt     *time.Time
	CreatedAt      time.Time
}

func (MailRecord) TableName() string {
	return "mail_records"
}

// LinkRecord maps the stored row onto the resolver input.
func (m MailRecord) LinkRecord(accountIndex *int) Record {
	rec := Record{
		MessageID:    m.GmailMessageID,
		ThreadID:     m.GmailThreadID,
		Token:        m.WebToken,
		Subject:      m.Subject,
		From:         m.FromAddress,
		AccountIndex: accountIndex,
	}
	if m.ReceivedAt != nil && !m.ReceivedAt.IsZero() {
		rec.ReceivedAt = m.ReceivedAt.UTC().Format(time.RFC3339)
	}
	return rec
}

// LinkTierStat counts opened links per resolution tier.
type LinkTierStat struct {
	Tier      string `gorm:"primaryKey;type:varchar(32)"`
	OpenCount int64  `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

// LinkOpenEvent is published each time a user follows a resolved link.
type LinkOpenEvent struct {
	RecordID  string    `json:"record_id"`
	Tier      Tier      `json:"tier"`
	Source    Source    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	UserAgent string    `json:"user_agent"`
}

// CountByTier aggregates a batch of events into per-tier counts.
func CountByTier(events []LinkOpenEvent) map[Tier]int64 {
	counts := make(map[Tier]int64)
	for _, e := range events {
		tier := e.Tier
		if tier == "" {
			tier = TierNone
		}
		counts[tier]++
	}
	return counts
}
