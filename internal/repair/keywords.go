package repair

import (
	"math"
	"strings"

	"github.com/coachcall/api/internal/model"
)

// Signals is what a keyword scan found in a piece of text.
type Signals struct {
	Positive   int
	Negative   int
	Urgent     int
	Score      float64
	Pressure   bool
	Impatience bool
	Aggressive bool
}

// KeywordPolicy scores free text for the heuristic fallback.
type KeywordPolicy interface {
	Evaluate(text string) Signals
}

// KeywordLists is a KeywordPolicy backed by plain word lists. Matching is
// case-insensitive substring matching, so Hebrew prefixes still match.
type KeywordLists struct {
	Positive []string
	Negative []string
	Urgent   []string
}

const (
	baseScore      = 6.0
	positiveWeight = 0.5
	negativeWeight = 0.75
	signalCap      = 6
)

func countHits(text string, words []string) int {
	n := 0
	for _, w := range words {
		if w == "" {
			continue
		}
		n += strings.Count(text, strings.ToLower(w))
	}
	return n
}

func (k KeywordLists) Evaluate(text string) Signals {
	text = strings.ToLower(text)
	sig := Signals{
		Positive: countHits(text, k.Positive),
		Negative: countHits(text, k.Negative),
		Urgent:   countHits(text, k.Urgent),
	}

	score := baseScore +
		positiveWeight*float64(min(sig.Positive, signalCap)) -
		negativeWeight*float64(min(sig.Negative, signalCap))
	sig.Score = math.Round(model.ClampScore(score))

	sig.Pressure = sig.Negative >= 2
	sig.Impatience = sig.Urgent >= 1
	sig.Aggressive = sig.Negative >= 4
	return sig
}

// DefaultKeywords holds the stock Hebrew and English lists.
var DefaultKeywords = KeywordLists{
	Positive: []string{
		"תודה", "מעולה", "מצוין", "נהדר", "בשמחה", "בהחלט", "מושלם", "אשמח", "שמח לעזור",
		"thank you", "great", "excellent", "perfect", "happy to help",
	},
	Negative: []string{
		"לא מעוניין", "לא רלוונטי", "יקר מדי", "מבזבז", "עצבני", "תפסיק", "לא נעים", "בעיה", "גרוע", "מאוכזב",
		"not interested", "too expensive", "stop calling", "annoyed", "terrible",
	},
	Urgent: []string{
		"עכשיו או אף פעם", "רק היום", "מהר", "דחוף", "אין זמן", "תחליט עכשיו", "מבצע מסתיים",
		"right now", "today only", "hurry", "last chance",
	},
}
