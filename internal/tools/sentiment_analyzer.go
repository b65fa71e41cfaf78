package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// SentimentTool is a lexicon-based polarity scorer. It needs no external
// service, which also makes it a reliable fallback target.
type SentimentTool struct{}

func NewSentiment() *SentimentTool { return &SentimentTool{} }

func (s *SentimentTool) Name() string { return SentimentAnalyzer }

func (s *SentimentTool) Description() string {
	return "Scores the sentiment of a text as positive, negative, or neutral."
}

var positiveWords = map[string]struct{}{
	"good": {}, "great": {}, "excellent": {}, "positive": {}, "success": {},
	"successful": {}, "improve": {}, "improved": {}, "growth": {}, "benefit": {},
	"promising": {}, "breakthrough": {}, "advance": {}, "strong": {}, "gain": {},
	"win": {}, "effective": {}, "innovative": {}, "opportunity": {}, "progress": {},
}

var negativeWords = map[string]struct{}{
	"bad": {}, "poor": {}, "negative": {}, "failure": {}, "fail": {},
	"decline": {}, "loss": {}, "risk": {}, "concern": {}, "problem": {},
	"crisis": {}, "threat": {}, "weak": {}, "drop": {}, "harm": {},
	"damage": {}, "worse": {}, "danger": {}, "fear": {}, "controversy": {},
}

func (s *SentimentTool) Run(ctx context.Context, input string) (string, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return "", fmt.Errorf("sentiment_analyzer: empty text")
	}
	var pos, neg, total int
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()[]")
		if w == "" {
			continue
		}
		total++
		if _, ok := positiveWords[w]; ok {
			pos++
		}
		if _, ok := negativeWords[w]; ok {
			neg++
		}
	}
	verdict := "neutral"
	if pos > neg {
		verdict = "positive"
	} else if neg > pos {
		verdict = "negative"
	}
	out, _ := json.Marshal(map[string]any{
		"verdict":        verdict,
		"positive_hits":  pos,
		"negative_hits":  neg,
		"words_analyzed": total,
	})
	return fmt.Sprintf("Sentiment: %s %s", verdict, out), nil
}
