package model

import "time"

// Lesson is something the user studied and wants to keep fresh.
// Name is unique per username.
type Lesson struct {
	ID            string     `json:"id"`
	Username      string     `json:"-"`
	Name          string     `json:"name"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastStudiedAt *time.Time `json:"lastStudiedAt,omitempty"`
	ReviewCount   int        `json:"reviewCount"`
}

// CurvePoint is one sample of a forgetting curve: Y percent retained X days
// after the last study session.
type CurvePoint struct {
	X int     `json:"x"`
	Y float64 `json:"y"`
}

// ForgettingCurve is the retention estimate for one lesson.
type ForgettingCurve struct {
	LessonID  string       `json:"id"`
	Name      string       `json:"name"`
	Retention float64      `json:"retention"`
	Curve     []CurvePoint `json:"curve"`
}
