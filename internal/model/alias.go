package model

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Aliases is an ordered list of accepted spellings for one logical field.
// Lookup tries every alias exactly, then with spaces and underscores folded.
type Aliases []string

// Top-level content fields
var (
	overallScoreAliases    = Aliases{"ציון כללי", "ציון_כללי", "overall_score", "score_overall"}
	redFlagAliases         = Aliases{"red_flag", "דגל_אדום"}
	redFlagListAliases     = Aliases{"דגלים אדומים", "דגלים_אדומים", "red_flags"}
	keyInsightAliases      = Aliases{"תובנות מרכזיות", "תובנות_מרכזיות", "key_insights", "insights"}
	improvementAliases     = Aliases{"נקודות לשיפור", "נקודות_לשיפור", "improvement_points", "המלצות_שיפור", "המלצות_פרקטיות"}
	strengthAliases        = Aliases{"נקודות חוזק לשימור", "נקודות_חוזק", "strengths_and_preservation_points", "strengths"}
	recommendationAliases  = Aliases{"המלצות פרקטיות לשיפור", "המלצות_פרקטיות_לשיפור", "המלצות_פרקטיות", "המלצות_מעשיות", "practical_recommendations"}
	detailedScoreAliases   = Aliases{"ציונים מפורטים", "ציונים_לפי_קטגוריות", "פרמטרים", "פירוט_ציונים", "detailed_scores", "category_scores"}
	quoteListAliases       = Aliases{"ציטוטים_רלוונטיים", "ציטוטים", "קטעים_רלוונטיים", "ציטוטים_או_קטעים_רלוונטיים", "key_segments", "segment_quotes", "quotes"}
	summaryAliases         = Aliases{"סיכום", "סיכום_כללי", "executive_summary", "summary"}
	quoteTextAliases       = Aliases{"text", "quote", "ציטוט", "טקסט"}
	quoteCategoryAliases   = Aliases{"category", "קטגוריה", "title"}
	quoteNoteAliases       = Aliases{"comment", "note", "הערה", "חלופה"}
	quoteTimestampAliases  = Aliases{"timestamp_seconds", "timestamp", "זמן"}
	paramScoreAliases      = Aliases{"ציון", "score", "rating"}
	paramInsightAliases    = Aliases{"תובנות", "insights", "הערות", "comment"}
	paramAdviceAliases     = Aliases{"איך_משפרים", "improvement_advice", "how_to_improve", "המלצה"}
	categoryMetadataFields = Aliases{"ממוצע", "ציון_ממוצע", "average", "category_score", "ציון_קטגוריה", "ציון", "score", "סיכום", "summary", "title", "כותרת"}
)

// Tone fields
var (
	toneOverallAliases         = Aliases{ToneKeyOverall, "טון", "overall_tone_assessment", "overall_tone"}
	toneEnergyAliases          = Aliases{ToneKeyEnergy, "רמת אנרגיה", "energy_level"}
	toneProfessionalismAliases = Aliases{ToneKeyProfessionalism, "professionalism"}
	tonePositivityAliases      = Aliases{ToneKeyPositivity, "positivity"}
	toneRedFlagAliases         = Aliases{ToneKeyRedFlags, "דגלים אדומים", "red_flags"}
	toneProsodyAliases         = Aliases{ToneKeyProsody, "סיכום פרוזודי", "prosodic_summary", "prosodic_analysis"}
	toneScoreAliases           = Aliases{ToneKeyScore, "ציון_טון", "tone_score", "score"}
	toneImprovementAliases     = Aliases{ToneKeyImprovements, "improvement_suggestions", "improvement_points"}
	toneStrengthAliases        = Aliases{ToneKeyStrengths, "נקודות_חוזק", "tonal_strengths", "strengths"}

	flagShoutingAliases       = Aliases{FlagShouting, "צעקות", "shouting_detected", "shouting"}
	flagPressureAliases       = Aliases{FlagHighPressure, "לחץ", "high_pressure", "pressure"}
	flagImpatienceAliases     = Aliases{FlagImpatience, "impatience"}
	flagAggressionAliases     = Aliases{FlagAggressiveness, "aggressiveness", "aggression"}
	flagUnprofessionalAliases = Aliases{FlagUnprofessional, "unprofessional_tone", "unprofessional"}
)

func foldKey(k string) string {
	k = strings.TrimSpace(strings.ToLower(k))
	k = strings.ReplaceAll(k, "-", "_")
	return strings.Join(strings.Fields(strings.ReplaceAll(k, "_", " ")), "_")
}

// Lookup returns the value of the first alias present in obj.
func (a Aliases) Lookup(obj map[string]interface{}) (interface{}, bool) {
	if obj == nil {
		return nil, false
	}
	for _, alias := range a {
		if v, ok := obj[alias]; ok && v != nil {
			return v, true
		}
	}
	folded := make(map[string]string, len(obj))
	for k := range obj {
		folded[foldKey(k)] = k
	}
	for _, alias := range a {
		if k, ok := folded[foldKey(alias)]; ok && obj[k] != nil {
			return obj[k], true
		}
	}
	return nil, false
}

// Has reports whether any alias is present with a non-null value.
func (a Aliases) Has(obj map[string]interface{}) bool {
	_, ok := a.Lookup(obj)
	return ok
}

// Matches reports whether key is one of the aliases.
func (a Aliases) Matches(key string) bool {
	fk := foldKey(key)
	for _, alias := range a {
		if key == alias || fk == foldKey(alias) {
			return true
		}
	}
	return false
}

func (a Aliases) String(obj map[string]interface{}) string {
	v, ok := a.Lookup(obj)
	if !ok {
		return ""
	}
	return toText(v)
}

func (a Aliases) Float(obj map[string]interface{}) (float64, bool) {
	v, ok := a.Lookup(obj)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func (a Aliases) Bool(obj map[string]interface{}) bool {
	v, ok := a.Lookup(obj)
	if !ok {
		return false
	}
	return toBool(v)
}

func (a Aliases) Map(obj map[string]interface{}) (map[string]interface{}, bool) {
	v, ok := a.Lookup(obj)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]interface{})
	return m, ok
}

func (a Aliases) StringList(obj map[string]interface{}) []string {
	v, ok := a.Lookup(obj)
	if !ok {
		return nil
	}
	return toStringList(v)
}

func toText(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []interface{}:
		return strings.Join(toStringList(t), "; ")
	case map[string]interface{}:
		for _, key := range []string{"תיאור", "description", "text", "summary", "value"} {
			if s, ok := t[key].(string); ok {
				return strings.TrimSpace(s)
			}
		}
		data, _ := json.Marshal(t)
		return string(data)
	default:
		return fmt.Sprint(t)
	}
}

// toFloat accepts numbers and numeric strings such as "7", "7.5" or "7/10".
func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t) && !math.IsInf(t, 0)
	case int:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(t)
		if i := strings.Index(s, "/"); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	case map[string]interface{}:
		return paramScoreAliases.Float(t)
	}
	return 0, false
}

func toBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "1", "כן", "אמת":
			return true
		}
	case []interface{}:
		return len(t) > 0
	}
	return false
}

func toStringList(v interface{}) []string {
	switch t := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := toText(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, line := range strings.Split(t, "\n") {
			line = strings.TrimSpace(strings.TrimLeft(line, "-•* "))
			if line != "" {
				out = append(out, line)
			}
		}
		return out
	case map[string]interface{}:
		keys := sortedKeys(t)
		out := make([]string, 0, len(keys))
		for _, k := range keys {
			if s := toText(t[k]); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasContentScore reports whether obj carries a numeric overall score.
func HasContentScore(obj map[string]interface{}) bool {
	_, ok := overallScoreAliases.Float(obj)
	return ok
}

// HasContentRedFlag reports whether obj carries a boolean red flag.
func HasContentRedFlag(obj map[string]interface{}) bool {
	v, ok := redFlagAliases.Lookup(obj)
	if !ok {
		return false
	}
	_, isBool := v.(bool)
	return isBool
}

// HasToneScore reports whether obj carries a numeric tone score.
func HasToneScore(obj map[string]interface{}) bool {
	_, ok := toneScoreAliases.Float(obj)
	return ok
}

// HasToneRedFlags reports whether obj carries the red flag object.
func HasToneRedFlags(obj map[string]interface{}) bool {
	_, ok := toneRedFlagAliases.Map(obj)
	return ok
}
