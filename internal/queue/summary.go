package queue

import (
	"strings"

	"golang.org/x/text/cases"
)

// Class is the bucket a queued message's status falls into.
type Class int

const (
	ClassOther Class = iota
	ClassRetry
	ClassFailed
)

func (c Class) String() string {
	switch c {
	case ClassRetry:
		return "retry"
	case ClassFailed:
		return "failed"
	default:
		return "other"
	}
}

var failedMarkers = []string{"failed", "deferred", "error"}

// Classify buckets a status text. Matching is a case-insensitive substring
// test evaluated Retry first, then Failed; anything else is Other.
func Classify(status string) Class {
	folded := cases.Fold().String(status)
	if strings.Contains(folded, "retry") {
		return ClassRetry
	}
	for _, marker := range failedMarkers {
		if strings.Contains(folded, marker) {
			return ClassFailed
		}
	}
	return ClassOther
}

// Summary counts queued messages per class.
type Summary struct {
	Total  int `json:"total"`
	Retry  int `json:"retry"`
	Failed int `json:"failed"`
	Other  int `json:"other"`
}

// Summarize classifies every status and returns fresh counts.
func Summarize(statuses []string) Summary {
	var s Summary
	for _, status := range statuses {
		s.Total++
		switch Classify(status) {
		case ClassRetry:
			s.Retry++
		case ClassFailed:
			s.Failed++
		default:
			s.Other++
		}
	}
	return s
}
