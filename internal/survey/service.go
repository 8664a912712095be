package survey

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/comigor/concierge-go/internal/logger"
)

// InputError is a caller mistake. It matches ErrInvalid with errors.Is and its
// message is safe to return to clients.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string { return e.Reason }

func (e *InputError) Is(target error) bool { return target == ErrInvalid }

func invalid(format string, args ...any) error {
	return &InputError{Reason: fmt.Sprintf(format, args...)}
}

// Service implements survey registration, loading and submission.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("survey: store must not be nil")
	}
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Registered is the result of Register.
type Registered struct {
	SurveyID      int64 `json:"survey_id"`
	QuestionCount int   `json:"question_count"`
}

// Register stores a survey described by a decoded JSON object. Numbers are
// expected as json.Number (decoder.UseNumber).
func (s *Service) Register(ctx context.Context, payload any) (Registered, error) {
	def, ok := payload.(map[string]any)
	if !ok {
		return Registered{}, invalid("payload must be a mapping")
	}

	var rawQuestions []any
	if q := def["questions"]; truthy(q) {
		list, ok := q.([]any)
		if !ok {
			return Registered{}, invalid("questions must be a list")
		}
		rawQuestions = list
	}

	name := "Survey"
	if n := clean(def["name"]); n != nil {
		name = *n
	}
	now := s.now()
	survey := NewSurvey{
		Name:        name,
		Description: clean(def["description"]),
		Category:    clean(def["category"]),
		CreatedAt:   now,
	}

	for i, raw := range rawQuestions {
		idx := i + 1
		q, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		var typeName string
		if t := clean(q["question_type"]); t != nil {
			typeName = *t
		}
		text := fmt.Sprintf("Question %d", idx)
		if t := clean(q["question_text"]); t != nil {
			text = *t
		}
		options, err := encodeOptions(firstTruthy(q, "options", "options_json"))
		if err != nil {
			return Registered{}, fmt.Errorf("encode options for question %d: %w", idx, err)
		}
		order := idx
		if o, ok := intValue(q["order"]); ok {
			order = o
		}
		var fontSize *int
		if f, ok := intValue(q["font_size"]); ok {
			fontSize = &f
		}

		survey.Questions = append(survey.Questions, NewQuestion{
			Type:         NormalizeQuestionType(typeName),
			Text:         text,
			Description:  clean(q["description"]),
			FontSize:     fontSize,
			OptionsJSON:  options,
			Required:     truthy(q["is_required"]),
			DisplayOrder: order,
		})
	}

	id, err := s.store.CreateSurvey(ctx, survey)
	if err != nil {
		return Registered{}, fmt.Errorf("create survey: %w", err)
	}
	logger.FromContext(ctx).Info("survey created", "survey_id", id, "questions", len(rawQuestions))
	return Registered{SurveyID: id, QuestionCount: len(rawQuestions)}, nil
}

// Load returns the survey and its questions in display order.
func (s *Service) Load(ctx context.Context, id int64) (Survey, error) {
	stored, err := s.store.GetSurvey(ctx, id)
	if err != nil {
		return Survey{}, err
	}

	out := Survey{ID: stored.ID, Name: stored.Name, Questions: make([]Question, 0, len(stored.Questions))}
	if stored.Description != nil {
		out.Description = *stored.Description
	}
	for _, q := range stored.Questions {
		var options []any
		if err := json.Unmarshal([]byte(q.OptionsJSON), &options); err != nil || options == nil {
			options = []any{}
		}
		out.Questions = append(out.Questions, Question{
			ID:           q.ID,
			Type:         q.Type,
			Text:         q.Text,
			Description:  q.Description,
			FontSize:     q.FontSize,
			Options:      options,
			Required:     q.Required,
			DisplayOrder: q.DisplayOrder,
		})
	}
	return out, nil
}

// Submission is one respondent's answers. Answers and Participant hold decoded
// JSON values; only answer keys prefixed with "q_" are kept.
type Submission struct {
	SurveyID    int64
	Answers     any
	Participant any
	IPAddress   string
	UserAgent   string
}

// Submit records a completed response and upserts the respondent when an
// external id is supplied.
func (s *Service) Submit(ctx context.Context, sub Submission) error {
	exists, err := s.store.SurveyExists(ctx, sub.SurveyID)
	if err != nil {
		return fmt.Errorf("check survey: %w", err)
	}
	if !exists {
		return invalid("survey not found")
	}

	answers := map[string]any{}
	if sub.Answers != nil {
		m, ok := sub.Answers.(map[string]any)
		if !ok {
			return invalid("answers must be a mapping")
		}
		answers = m
	}
	normalized := make(map[string]any, len(answers))
	for key, value := range answers {
		if !strings.HasPrefix(key, "q_") {
			continue
		}
		normalized[strings.SplitN(key, "_", 2)[1]] = answerValue(value)
	}
	answersJSON, err := marshalJSON(normalized)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}

	participant, _ := sub.Participant.(map[string]any)
	externalID := clean(firstTruthy(participant, "external_id", "id", "identifier"))
	now := s.now()

	var memberID *int64
	if externalID != nil {
		id, err := s.store.UpsertMember(ctx, Member{
			ExternalID:  *externalID,
			DisplayName: clean(firstTruthy(participant, "display_name", "name")),
			Email:       clean(participant["email"]),
			Phone:       clean(participant["phone"]),
			Source:      "form",
			SeenAt:      now,
		})
		if err != nil {
			return fmt.Errorf("upsert member: %w", err)
		}
		memberID = &id
	}

	responseID, err := s.store.InsertResponse(ctx, Response{
		SurveyID:    sub.SurveyID,
		MemberID:    memberID,
		ExternalID:  externalID,
		AnswersJSON: answersJSON,
		CompletedAt: now,
		Source:      "form",
		IPAddress:   clean(sub.IPAddress),
		UserAgent:   clean(sub.UserAgent),
	})
	if err != nil {
		return fmt.Errorf("insert response: %w", err)
	}
	logger.FromContext(ctx).Info("survey response stored", "survey_id", sub.SurveyID, "response_id", responseID)
	return nil
}

// answerValue keeps lists, maps null to "" and stringifies everything else.
func answerValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case []any:
		return t
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case map[string]any:
		s, err := marshalJSON(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return s
	}
	return fmt.Sprint(v)
}

func encodeOptions(v any) (string, error) {
	list, ok := v.([]any)
	if !ok {
		list = []any{}
	}
	return marshalJSON(list)
}

// marshalJSON encodes without HTML escaping so non-ASCII and markup survive verbatim.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// clean trims a scalar to a string; blank or missing values become nil.
func clean(v any) *string {
	var s string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s = t
	case json.Number:
		s = t.String()
	default:
		s = fmt.Sprint(t)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

func firstTruthy(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v := m[k]; truthy(v) {
			return v
		}
	}
	return nil
}

// intValue accepts integral JSON numbers only.
func intValue(v any) (int, bool) {
	switch t := v.(type) {
	case json.Number:
		n, err := strconv.Atoi(t.String())
		return n, err == nil
	case int:
		return t, true
	case int64:
		return int(t), true
	}
	return 0, false
}
