// Package domain defines shared domain types for the relay bot.
package domain

import "time"

// Chat kinds as reported by Telegram. Informational only; delivery never
// branches on them.
const (
	KindGroup      = "group"
	KindSupergroup = "supergroup"
	KindChannel    = "channel"
)

// DefaultTitle substitutes for chats that report no title of their own.
const DefaultTitle = "Unknown Group"

// GroupRecord is one chat the bot has joined. Active is the only gate on
// broadcast eligibility; the remaining fields are bookkeeping.
type GroupRecord struct {
	ChatID  int64     `bson:"chat_id" json:"id"`
	Title   string    `bson:"title" json:"title"`
	Kind    string    `bson:"kind" json:"kind"`
	Active  bool      `bson:"active" json:"active"`
	AddedAt time.Time `bson:"added_at" json:"added_at"`
}
