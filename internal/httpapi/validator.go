package httpapi

import (
	"fmt"
	"strings"
)

const (
	maxSearchWords = 25
	maxWordLength  = 256
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// ValidateSearchRequest checks the structural constraints of a search
// request. Operator semantics are validated further down by the query
// engine.
func ValidateSearchRequest(req *SearchRequest) error {
	errs := make(map[string]string)

	if len(req.Words) == 0 {
		errs["words"] = "at least one word is required"
	} else if len(req.Words) > maxSearchWords {
		errs["words"] = fmt.Sprintf("at most %d words per search", maxSearchWords)
	}
	for _, word := range req.Words {
		if strings.TrimSpace(word) == "" {
			errs["words"] = "words must not be blank"
			break
		}
		if len(word) > maxWordLength {
			errs["words"] = fmt.Sprintf("words must be at most %d characters", maxWordLength)
			break
		}
	}
	if strings.TrimSpace(req.Operator) == "" {
		errs["operator"] = "operator is required"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
