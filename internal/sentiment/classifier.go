// Package sentiment classifies free text against fixed keyword sets. It is
// a placeholder heuristic, not a model; anything smarter should implement
// Classifier and be swapped in behind it.
package sentiment

import (
	"math/rand"
	"strings"
)

const (
	Positive = "positive"
	Negative = "negative"
	Neutral  = "neutral"
)

type Result struct {
	Sentiment string  `json:"sentiment"`
	Score     float64 `json:"score"`
}

type Classifier interface {
	Classify(text string) Result
}

// KeywordClassifier matches substrings case-insensitively. The positive set
// is checked first and wins when both sets match; that ordering is part of
// the observed behavior.
type KeywordClassifier struct {
	Positive []string
	Negative []string
	Rand     func() float64
}

func New(positive, negative []string) *KeywordClassifier {
	return &KeywordClassifier{
		Positive: positive,
		Negative: negative,
		Rand:     rand.Float64,
	}
}

// NewAnalyze returns the classifier used by the standalone analyze
// operation.
func NewAnalyze() *KeywordClassifier {
	return New(
		[]string{"great", "excellent", "good", "love", "amazing"},
		[]string{"bad", "terrible", "hate", "awful", "poor"},
	)
}

// NewFeedback returns the classifier applied to course feedback at submit
// time. Its keyword sets differ slightly from the analyze set.
func NewFeedback() *KeywordClassifier {
	return New(
		[]string{"great", "excellent", "good", "helpful", "enjoy"},
		[]string{"bad", "poor", "difficult", "struggle", "disappointed"},
	)
}

func (c *KeywordClassifier) Classify(text string) Result {
	lowered := strings.ToLower(text)
	for _, keyword := range c.Positive {
		if strings.Contains(lowered, keyword) {
			return Result{Sentiment: Positive, Score: 0.8 + c.Rand()*0.2}
		}
	}
	for _, keyword := range c.Negative {
		if strings.Contains(lowered, keyword) {
			return Result{Sentiment: Negative, Score: 0.7 + c.Rand()*0.3}
		}
	}
	return Result{Sentiment: Neutral, Score: 0.5}
}
