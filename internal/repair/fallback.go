package repair

import (
	"strings"
	"unicode/utf8"

	"github.com/coachcall/api/internal/model"
)

type reportKind int

const (
	kindGeneric reportKind = iota
	kindTone
	kindContent
)

const (
	keyRecoveryInfo = model.KeyRecoveryInfo
	previewRunes    = 200
)

func preview(raw string) string {
	s := strings.TrimSpace(raw)
	if utf8.RuneCountInString(s) <= previewRunes {
		return s
	}
	return string([]rune(s)[:previewRunes]) + "..."
}

func recoveryInfo(m Method, cause error, raw string) map[string]interface{} {
	info := map[string]interface{}{
		"method":          string(m),
		"content_preview": preview(raw),
	}
	if cause != nil {
		info["original_error"] = cause.Error()
	}
	return info
}

// signalText picks the text the keyword policy scores: the transcript when
// there is one, else the raw model output.
func signalText(raw, transcript string) string {
	if strings.TrimSpace(transcript) != "" {
		return transcript
	}
	return raw
}

func (e *Engine) fallback(k reportKind, raw, transcript string, cause error) map[string]interface{} {
	switch k {
	case kindTone:
		return e.toneFallback(raw, transcript, cause)
	case kindContent:
		return e.contentFallback(raw, transcript, cause)
	}
	return map[string]interface{}{
		"error":         "unparseable_response",
		keyRecoveryInfo: recoveryInfo(MethodHeuristic, cause, raw),
	}
}

func toneFlags(sig Signals) map[string]interface{} {
	return map[string]interface{}{
		model.FlagShouting:       false,
		model.FlagHighPressure:   sig.Pressure,
		model.FlagImpatience:     sig.Impatience,
		model.FlagAggressiveness: sig.Aggressive,
		model.FlagUnprofessional: false,
	}
}

func (e *Engine) toneFallback(raw, transcript string, cause error) map[string]interface{} {
	sig := e.policy.Evaluate(signalText(raw, transcript))

	overall := "ניטרלי"
	switch {
	case sig.Score >= 8:
		overall = "חיובי"
	case sig.Score <= 5:
		overall = "מתוח"
	}

	improvements := []interface{}{"מומלץ לשמור על קצב דיבור רגוע ומדוד"}
	if sig.Pressure {
		improvements = append(improvements, "להפחית לחץ על הלקוח ולתת לו זמן להחליט")
	}
	if sig.Impatience {
		improvements = append(improvements, "להימנע מדחיפות יתר ולהקשיב עד הסוף")
	}

	return map[string]interface{}{
		model.ToneKeyOverall:         overall,
		model.ToneKeyEnergy:          "בינונית",
		model.ToneKeyProfessionalism: "לא ניתן להעריך במדויק",
		model.ToneKeyPositivity:      overall,
		model.ToneKeyRedFlags:        toneFlags(sig),
		model.ToneKeyProsody:         "הניתוח הטונאלי הוערך לפי מילות מפתח בתמליל מאחר שתשובת המודל לא הייתה תקינה",
		model.ToneKeyScore:           sig.Score,
		model.ToneKeyImprovements:    improvements,
		model.ToneKeyStrengths:       []interface{}{"השיחה הושלמה"},
		keyRecoveryInfo:              recoveryInfo(MethodHeuristic, cause, raw),
	}
}

func (e *Engine) contentFallback(raw, transcript string, cause error) map[string]interface{} {
	sig := e.policy.Evaluate(signalText(raw, transcript))

	insights := []interface{}{"הניתוח המלא לא היה זמין; הציון הוערך לפי מילות מפתח"}
	if sig.Positive > 0 {
		insights = append(insights, "זוהו ביטויים חיוביים בשיחה")
	}
	if sig.Negative > 0 {
		insights = append(insights, "זוהו ביטויים שליליים בשיחה")
	}

	return map[string]interface{}{
		model.ContentKeyOverallScore: sig.Score,
		model.ContentKeyRedFlag:      sig.Pressure || sig.Impatience,
		"key_insights":               insights,
		"improvement_points":         []interface{}{"מומלץ לנתח את השיחה מחדש לקבלת משוב מפורט"},
		"practical_recommendations":  []interface{}{"להקפיד על שאלות פתוחות ואיתור צרכים", "לסכם צעדים הבאים בסוף השיחה"},
		keyRecoveryInfo:              recoveryInfo(MethodHeuristic, cause, raw),
	}
}

// fillRequired adds the fields consumers depend on when a partially
// recovered object lacks them. It reports whether anything was added.
func (e *Engine) fillRequired(k reportKind, obj map[string]interface{}, transcript string) bool {
	var (
		sig    Signals
		scored bool
		filled bool
	)
	signals := func() Signals {
		if !scored {
			sig, scored = e.policy.Evaluate(transcript), true
		}
		return sig
	}

	switch k {
	case kindTone:
		if !model.HasToneScore(obj) {
			obj[model.ToneKeyScore] = signals().Score
			filled = true
		}
		if !model.HasToneRedFlags(obj) {
			obj[model.ToneKeyRedFlags] = toneFlags(signals())
			filled = true
		}
	case kindContent:
		if !model.HasContentScore(obj) {
			obj[model.ContentKeyOverallScore] = signals().Score
			filled = true
		}
		if !model.HasContentRedFlag(obj) {
			s := signals()
			obj[model.ContentKeyRedFlag] = s.Pressure || s.Impatience
			filled = true
		}
	}
	return filled
}
