package sentiment

import "testing"

func TestClassifyKeywords(t *testing.T) {
	classifier := NewAnalyze()

	cases := map[string]string{
		"This course was great and helpful": Positive,
		"Absolutely AMAZING lectures":       Positive,
		"terrible pacing, poor slides":      Negative,
		"the syllabus covers recursion":     Neutral,
		"":                                  Neutral,
	}
	for text, expect := range cases {
		result := classifier.Classify(text)
		if result.Sentiment != expect {
			t.Fatalf("Classify(%q) = %s, expected %s", text, result.Sentiment, expect)
		}
	}
}

func TestClassifyScoreRanges(t *testing.T) {
	classifier := NewAnalyze()
	classifier.Rand = func() float64 { return 1.0 }

	if result := classifier.Classify("great"); result.Score < 0.8 || result.Score > 1.0 {
		t.Fatalf("positive score %f out of range", result.Score)
	}
	if result := classifier.Classify("awful"); result.Score < 0.7 || result.Score > 1.0 {
		t.Fatalf("negative score %f out of range", result.Score)
	}
	if result := classifier.Classify("nothing notable"); result.Score != 0.5 {
		t.Fatalf("neutral score %f, expected 0.5", result.Score)
	}

	classifier.Rand = func() float64 { return 0 }
	if result := classifier.Classify("great"); result.Score != 0.8 {
		t.Fatalf("positive floor %f, expected 0.8", result.Score)
	}
	if result := classifier.Classify("awful"); result.Score != 0.7 {
		t.Fatalf("negative floor %f, expected 0.7", result.Score)
	}
}

func TestClassifyPositiveWinsTie(t *testing.T) {
	// "good" and "bad" both match; the positive check runs first.
	result := NewAnalyze().Classify("good course, bad room")
	if result.Sentiment != Positive {
		t.Fatalf("expected positive on tie, got %s", result.Sentiment)
	}
}

func TestFeedbackKeywordSet(t *testing.T) {
	classifier := NewFeedback()

	if result := classifier.Classify("I enjoy the labs"); result.Sentiment != Positive {
		t.Fatalf("expected positive, got %s", result.Sentiment)
	}
	if result := classifier.Classify("I struggle with the workload"); result.Sentiment != Negative {
		t.Fatalf("expected negative, got %s", result.Sentiment)
	}
	// "love" is only in the analyze set.
	if result := classifier.Classify("love it"); result.Sentiment != Neutral {
		t.Fatalf("expected neutral, got %s", result.Sentiment)
	}
}
