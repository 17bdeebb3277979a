package models

import (
	"math"
	"time"
)

// Profile carries the chat-platform fields refreshed on every interaction.
// Empty strings mean "not supplied" and never overwrite stored values.
type Profile struct {
	TelegramID   int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
}

// UserAccount is a persisted bot user together with its usage counters.
type UserAccount struct {
	ID                    int64
	TelegramID            int64
	Username              string
	FirstName             string
	LastName              string
	LanguageCode          string
	TotalRequests         int
	TotalVideosDownloaded int
	CreatedAt             time.Time
	UpdatedAt             time.Time
	LastActivity          *time.Time
}

// DisplayName returns the best human-readable name for the account.
func (u UserAccount) DisplayName() string {
	switch {
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return "@" + u.Username
	default:
		return "there"
	}
}

// UserStats is a read-only snapshot of a user's counters and timestamps.
type UserStats struct {
	TelegramID            int64
	Username              string
	FirstName             string
	TotalRequests         int
	TotalVideosDownloaded int
	CreatedAt             time.Time
	LastActivity          *time.Time
}

// DaysSinceRegistration counts whole days since CreatedAt, never less than one.
func (s UserStats) DaysSinceRegistration(now time.Time) int {
	days := int(now.Sub(s.CreatedAt).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}

// AverageVideosPerDay returns downloaded videos per day since registration,
// rounded to one decimal place.
func (s UserStats) AverageVideosPerDay(now time.Time) float64 {
	avg := float64(s.TotalVideosDownloaded) / float64(s.DaysSinceRegistration(now))
	return math.Round(avg*10) / 10
}
