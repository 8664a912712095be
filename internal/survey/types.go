// Package survey registers questionnaires, serves them as forms and records
// responses together with the respondent's member record.
package survey

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a survey id does not exist.
	ErrNotFound = errors.New("survey not found")
	// ErrInvalid wraps rejected definitions and submissions.
	ErrInvalid = errors.New("invalid survey input")
)

// Survey is a loaded questionnaire with its questions in display order.
type Survey struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Questions   []Question `json:"questions"`
}

type Question struct {
	ID           int64        `json:"id"`
	Type         QuestionType `json:"question_type"`
	Text         string       `json:"question_text"`
	Description  *string      `json:"description"`
	FontSize     *int         `json:"font_size"`
	Options      []any        `json:"options"`
	Required     bool         `json:"is_required"`
	DisplayOrder int          `json:"display_order"`
}

// NewSurvey is a cleaned definition ready to be stored.
type NewSurvey struct {
	Name        string
	Description *string
	Category    *string
	Questions   []NewQuestion
	CreatedAt   time.Time
}

type NewQuestion struct {
	Type         QuestionType
	Text         string
	Description  *string
	FontSize     *int
	OptionsJSON  string
	Required     bool
	DisplayOrder int
}

// StoredQuestion is a question row as persisted; OptionsJSON is decoded on load.
type StoredQuestion struct {
	ID           int64
	Type         QuestionType
	Text         string
	Description  *string
	FontSize     *int
	OptionsJSON  string
	Required     bool
	DisplayOrder int
}

// StoredSurvey is a survey row with its questions ordered by display order then id.
type StoredSurvey struct {
	ID          int64
	Name        string
	Description *string
	Questions   []StoredQuestion
}

// Member is a respondent identified by an external id.
type Member struct {
	ExternalID  string
	DisplayName *string
	AvatarURL   *string
	Gender      *string
	Birthday    *string
	Email       *string
	Phone       *string
	Source      string
	SeenAt      time.Time
}

// Response is one completed submission.
type Response struct {
	SurveyID    int64
	MemberID    *int64
	ExternalID  *string
	AnswersJSON string
	CompletedAt time.Time
	Source      string
	IPAddress   *string
	UserAgent   *string
}

// Store is the persistence contract for surveys.
type Store interface {
	CreateSurvey(ctx context.Context, s NewSurvey) (int64, error)
	// GetSurvey returns ErrNotFound for unknown ids.
	GetSurvey(ctx context.Context, id int64) (StoredSurvey, error)
	SurveyExists(ctx context.Context, id int64) (bool, error)
	UpsertMember(ctx context.Context, m Member) (int64, error)
	InsertResponse(ctx context.Context, r Response) (int64, error)
}
