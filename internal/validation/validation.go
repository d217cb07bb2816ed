package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Willy-Angole/abilispace-sub002/internal/apperr"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	DefaultMaxMessageLength = 10000
	MaxGroupNameLength      = 100
	MaxDescriptionLength    = 255
	MaxSearchQueryLength    = 100
)

var validate = validator.New()

// Struct validates request DTOs by their `validate` tags.
func Struct(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return apperr.Validation(fmt.Sprintf("%s failed on %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return apperr.Validation("invalid request")
	}
	return nil
}

// NormalizeContent trims message content and checks it is 1..max characters.
func NormalizeContent(content string, max int) (string, error) {
	if max <= 0 {
		max = DefaultMaxMessageLength
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", apperr.Validation("content is required")
	}
	if utf8.RuneCountInString(content) > max {
		return "", apperr.Validation(fmt.Sprintf("content exceeds %d characters", max))
	}
	return content, nil
}

func NormalizeGroupName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation("name is required for group conversations")
	}
	if utf8.RuneCountInString(name) > MaxGroupNameLength {
		return "", apperr.Validation(fmt.Sprintf("name exceeds %d characters", MaxGroupNameLength))
	}
	return name, nil
}

func NormalizeDescription(description string) (string, error) {
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return "", apperr.Validation(fmt.Sprintf("description exceeds %d characters", MaxDescriptionLength))
	}
	return description, nil
}

func NormalizeSearchQuery(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", apperr.Validation("query is required")
	}
	if utf8.RuneCountInString(query) > MaxSearchQueryLength {
		return "", apperr.Validation(fmt.Sprintf("query exceeds %d characters", MaxSearchQueryLength))
	}
	return query, nil
}

// NormalizeClientID accepts an optional UUID and returns it in canonical form.
func NormalizeClientID(clientID *string) (*string, error) {
	if clientID == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*clientID)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := uuid.Parse(trimmed)
	if err != nil {
		return nil, apperr.Validation("client_id must be a UUID")
	}
	canonical := parsed.String()
	return &canonical, nil
}
