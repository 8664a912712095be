package survey

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
)

//go:embed templates/form.html
var templateFS embed.FS

var formTemplate = template.Must(template.ParseFS(templateFS, "templates/form.html"))

type formView struct {
	SurveyID    int64
	Name        string
	Description string
	Questions   []questionView
}

type questionView struct {
	ID          int64
	Kind        string
	Field       string
	Prompt      string
	Description string
	Required    bool
	Control     string
	InputType   string
	Options     []optionView
}

type optionView struct {
	Value string
	Label string
}

// RenderForm writes the HTML form for s.
func RenderForm(w io.Writer, s Survey) error {
	view := formView{SurveyID: s.ID, Name: s.Name, Description: s.Description}
	if view.Name == "" {
		view.Name = "Survey"
	}
	for i, q := range s.Questions {
		qv := questionView{
			ID:       q.ID,
			Kind:     strings.ToLower(string(q.Type)),
			Field:    fmt.Sprintf("q_%d", q.ID),
			Prompt:   q.Text,
			Required: q.Required,
			Control:  controlFor(q.Type),
		}
		if qv.Prompt == "" {
			qv.Prompt = fmt.Sprintf("Question %d", i+1)
		}
		if q.Description != nil {
			qv.Description = *q.Description
		}
		qv.InputType = q.Type.inputKind()
		for j, opt := range q.Options {
			qv.Options = append(qv.Options, optionFor(opt, j+1))
		}
		view.Questions = append(view.Questions, qv)
	}
	return formTemplate.Execute(w, view)
}

func controlFor(t QuestionType) string {
	switch t {
	case TypeTextarea:
		return "textarea"
	case TypeSingleChoice, TypeGender:
		return "radio"
	case TypeMultiChoice:
		return "checkbox"
	case TypeSelect:
		return "select"
	}
	return "input"
}

// optionFor resolves an option entry. Objects use value/label with each
// falling back to the other; scalars serve as both.
func optionFor(opt any, idx int) optionView {
	m, ok := opt.(map[string]any)
	if !ok {
		s := fmt.Sprint(opt)
		return optionView{Value: s, Label: s}
	}
	value, hasValue := m["value"]
	label, hasLabel := m["label"]
	hasValue = hasValue && value != nil
	hasLabel = hasLabel && label != nil

	out := optionView{Value: fmt.Sprintf("option_%d", idx), Label: fmt.Sprintf("Option %d", idx)}
	switch {
	case hasValue:
		out.Value = fmt.Sprint(value)
	case hasLabel:
		out.Value = fmt.Sprint(label)
	}
	switch {
	case hasLabel:
		out.Label = fmt.Sprint(label)
	case hasValue:
		out.Label = fmt.Sprint(value)
	}
	return out
}
