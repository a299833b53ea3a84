package domain

import (
	"net/url"
	"time"
)

const (
	TargetKindDiscord = "discord"
	TargetKindGeneric = "generic"
)

// Announcement is one candidate item produced by a feed reader.
// It is transient and never persisted in this form.
type Announcement struct {
	ID        string
	Title     string
	PubDate   string
	Published time.Time
	Link      string
}

// PostedRecord is the durable trace of a confirmed delivery.
type PostedRecord struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	PostedAt time.Time `json:"postedAt"`
}

// Target is one configured delivery destination. Endpoint carries the
// webhook credential, so it must never be logged in full.
type Target struct {
	Name     string
	Endpoint string
	Kind     string
}

// Redacted returns a loggable form of the endpoint: scheme and host only.
func (t Target) Redacted() string {
	u, err := url.Parse(t.Endpoint)
	if err != nil || u.Host == "" {
		return "<invalid endpoint>"
	}

	return u.Scheme + "://" + u.Host
}

// DeliveryOutcome is the per-target result of one delivery pass.
type DeliveryOutcome struct {
	Target  string
	Success bool
	Err     string
}

// Delivered reports whether at least one target confirmed the delivery.
func Delivered(outcomes []DeliveryOutcome) bool {
	for _, o := range outcomes {
		if o.Success {
			return true
		}
	}

	return false
}
