package models

import "time"

// Digest is a generated summary of a user's monitored emails for one period.
type Digest struct {
	ID          string         `json:"id"`
	Date        string         `json:"date"`
	Summary     string         `json:"summary"`
	Topics      []DigestTopic  `json:"topics,omitempty"`
	EmailCount  int            `json:"email_count"`
	Stats       map[string]int `json:"stats,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// DigestTopic groups related emails under a single theme inside a digest.
type DigestTopic struct {
	Title    string   `json:"title"`
	Summary  string   `json:"summary"`
	EmailIDs []string `json:"email_ids,omitempty"`
}

// MonitoredEmail is a sender address the backend watches for digest material.
type MonitoredEmail struct {
	ID        string    `json:"id"`
	Address   string    `json:"email_address"`
	Label     string    `json:"label,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserSettings holds the per-user dashboard preferences.
type UserSettings struct {
	DigestTime     string `json:"digest_time,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
	EmailsPerTopic int    `json:"emails_per_topic,omitempty"`
	Theme          Theme  `json:"theme,omitempty"`
}

// Theme holds display preferences.
type Theme struct {
	Mode        string `json:"mode,omitempty"`
	AccentColor string `json:"accent_color,omitempty"`
}
