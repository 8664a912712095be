package survey

import (
	"encoding/json"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// ParseSubmission reads a JSON submission body:
// {"sid" | "survey_id", "data" | "answers", "participant"}.
// The body must be decoded with UseNumber.
func ParseSubmission(payload map[string]any) (Submission, error) {
	id, ok := surveyID(firstTruthy(payload, "sid", "survey_id"))
	if !ok {
		return Submission{}, invalid("invalid sid")
	}
	answers := firstTruthy(payload, "data", "answers")
	if answers == nil {
		answers = map[string]any{}
	}
	participant := firstTruthy(payload, "participant")
	if participant == nil {
		participant = map[string]any{}
	}
	return Submission{SurveyID: id, Answers: answers, Participant: participant}, nil
}

// ParseFormSubmission reads a form post. Repeated q_* fields become lists;
// participant_id and participant_name identify the respondent.
func ParseFormSubmission(form url.Values) (Submission, error) {
	id, ok := surveyID(form.Get("sid"))
	if !ok {
		return Submission{}, invalid("invalid sid")
	}
	answers := map[string]any{}
	for key, values := range form {
		if !strings.HasPrefix(key, "q_") || len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			answers[key] = values[0]
			continue
		}
		list := make([]any, len(values))
		for i, v := range values {
			list[i] = v
		}
		answers[key] = list
	}
	participant := map[string]any{
		"external_id":  strings.TrimSpace(form.Get("participant_id")),
		"display_name": strings.TrimSpace(form.Get("participant_name")),
	}
	return Submission{SurveyID: id, Answers: answers, Participant: participant}, nil
}

// ParseID reads a survey id from a query parameter. Zero, negative and
// non-numeric values are rejected.
func ParseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// surveyID accepts integers, integral floats and numeric strings.
func surveyID(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		if id, err := t.Int64(); err == nil {
			return id, true
		}
		f, err := t.Float64()
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, false
		}
		return int64(f), true
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return id, err == nil
	}
	return 0, false
}
