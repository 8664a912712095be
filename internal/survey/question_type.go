package survey

import "strings"

type QuestionType string

const (
	TypeText         QuestionType = "TEXT"
	TypeTextarea     QuestionType = "TEXTAREA"
	TypeSingleChoice QuestionType = "SINGLE_CHOICE"
	TypeMultiChoice  QuestionType = "MULTI_CHOICE"
	TypeSelect       QuestionType = "SELECT"
	TypeName         QuestionType = "NAME"
	TypePhone        QuestionType = "PHONE"
	TypeEmail        QuestionType = "EMAIL"
	TypeBirthday     QuestionType = "BIRTHDAY"
	TypeAddress      QuestionType = "ADDRESS"
	TypeGender       QuestionType = "GENDER"
	TypeImage        QuestionType = "IMAGE"
	TypeVideo        QuestionType = "VIDEO"
	TypeIDNumber     QuestionType = "ID_NUMBER"
	TypeLink         QuestionType = "LINK"
)

// aliases is ordered; the substring pass returns the first canonical type whose
// alias appears in the token.
var aliases = []struct {
	canonical QuestionType
	names     []string
}{
	{TypeText, []string{"TEXT", "INPUT", "SHORT_TEXT"}},
	{TypeTextarea, []string{"TEXTAREA", "LONG_TEXT", "PARAGRAPH"}},
	{TypeSingleChoice, []string{"SINGLE_CHOICE", "SINGLE", "RADIO", "CHOICE_SINGLE"}},
	{TypeMultiChoice, []string{"MULTI_CHOICE", "MULTI", "CHECKBOX", "CHOICE_MULTI", "MULTIPLE"}},
	{TypeSelect, []string{"SELECT", "DROPDOWN", "PULLDOWN"}},
	{TypeName, []string{"NAME"}},
	{TypePhone, []string{"PHONE", "TEL", "MOBILE"}},
	{TypeEmail, []string{"EMAIL"}},
	{TypeBirthday, []string{"BIRTHDAY", "DOB", "DATE_OF_BIRTH", "DATE"}},
	{TypeAddress, []string{"ADDRESS"}},
	{TypeGender, []string{"GENDER", "SEX"}},
	{TypeImage, []string{"IMAGE", "PHOTO"}},
	{TypeVideo, []string{"VIDEO"}},
	{TypeIDNumber, []string{"ID_NUMBER", "IDENTIFICATION"}},
	{TypeLink, []string{"LINK", "URL"}},
}

// NormalizeQuestionType maps free-form type names onto a canonical type.
// Unknown or blank input falls back to TEXT.
func NormalizeQuestionType(raw string) QuestionType {
	token := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_"))
	if token == "" {
		return TypeText
	}
	for _, a := range aliases {
		if token == string(a.canonical) {
			return a.canonical
		}
		for _, name := range a.names {
			if token == name {
				return a.canonical
			}
		}
	}
	for _, a := range aliases {
		for _, name := range a.names {
			if strings.Contains(token, name) {
				return a.canonical
			}
		}
	}
	return TypeText
}

// inputKind is the HTML input type used for single-line question types.
func (t QuestionType) inputKind() string {
	switch t {
	case TypePhone:
		return "tel"
	case TypeEmail:
		return "email"
	case TypeBirthday:
		return "date"
	case TypeLink:
		return "url"
	}
	return "text"
}
