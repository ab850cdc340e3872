package database

import (
	"encoding/json"
	"time"
)

// StoredQuizSession is a persisted quiz session snapshot.
type StoredQuizSession struct {
	ID        string
	State     json.RawMessage // quiz.State encoded as JSON
	Active    int
	Completed bool
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// StoredSubmission is one analyzed quiz submission and the advice given for it.
type StoredSubmission struct {
	UserID          string
	QuizData        json.RawMessage // normalized hair profile
	HasImage        bool
	ImageAnalysis   string
	RecommendedLine string
	Reason          string
	ProductRoutine  string
	Alternative     string
	RawAdvice       string // unparsed model output
	Provider        string
	Model           string
	InputTokens     int
	OutputTokens    int
	Cost            float64
	CreatedAt       time.Time
}
