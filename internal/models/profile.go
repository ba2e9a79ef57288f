package models

import (
	"fmt"
	"time"
)

// Profile holds per-user learning counters and streak state.
type Profile struct {
	UserID            string     `db:"user_id" json:"user_id"`
	Bio               string     `db:"bio" json:"bio"`
	TotalStudySeconds int64      `db:"total_study_seconds" json:"total_study_seconds"`
	CoursesCompleted  int        `db:"courses_completed" json:"courses_completed"`
	CurrentStreak     int        `db:"current_streak" json:"current_streak"`
	LongestStreak     int        `db:"longest_streak" json:"longest_streak"`
	LastActivity      *time.Time `db:"last_activity" json:"last_activity,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// StudyMinutes returns the whole minutes of recorded study time.
func (p Profile) StudyMinutes() int64 {
	return p.TotalStudySeconds / 60
}

// StudyTimeDisplay renders study time as "Xh Ym", or "Ym" under an hour.
func (p Profile) StudyTimeDisplay() string {
	minutes := p.StudyMinutes()
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

// ProfileStats is the public subset of a profile shown on summaries.
type ProfileStats struct {
	TotalStudyMinutes int64  `json:"total_study_minutes"`
	StudyTimeDisplay  string `json:"study_time_display"`
	CoursesCompleted  int    `json:"courses_completed"`
	CurrentStreak     int    `json:"current_streak"`
	LongestStreak     int    `json:"longest_streak"`
}

// Stats projects the profile counters.
func (p Profile) Stats() ProfileStats {
	return ProfileStats{
		TotalStudyMinutes: p.StudyMinutes(),
		StudyTimeDisplay:  p.StudyTimeDisplay(),
		CoursesCompleted:  p.CoursesCompleted,
		CurrentStreak:     p.CurrentStreak,
		LongestStreak:     p.LongestStreak,
	}
}
