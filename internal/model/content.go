package model

import "math"

// Content report field names
const (
	ContentKeyOverallScore = "overall_score"
	ContentKeyRedFlag      = "red_flag"
)

// Category is one section of the content rubric
type Category struct {
	Key        string
	Title      string
	Aliases    Aliases
	Parameters []string
}

// Taxonomy is the fixed 8-category / 32-parameter content rubric.
var Taxonomy = []Category{
	{
		Key:        "פתיחת_שיחה_ובניית_אמון",
		Title:      "פתיחת שיחה ובניית אמון",
		Aliases:    Aliases{"פתיחת_שיחה", "opening_and_trust", "opening"},
		Parameters: []string{"פתיח_אנרגטי", "הצגת_נציג_וחברה", "בניית_סמכות_ומומחיות", "הצגת_תועלת_מהירה", "בניית_אמון"},
	},
	{
		Key:        "איתור_צרכים_וזיהוי_כאב",
		Title:      "איתור צרכים וזיהוי כאב",
		Aliases:    Aliases{"איתור_צרכים", "needs_discovery"},
		Parameters: []string{"שאילת_שאלות", "איתור_כאב_או_צורך", "זיהוי_סגנון_תקשורת", "חיבור_לצורך"},
	},
	{
		Key:        "הקשבה_ואינטראקציה",
		Title:      "הקשבה ואינטראקציה",
		Aliases:    Aliases{"הקשבה", "listening_and_interaction", "listening"},
		Parameters: []string{"הקשבה_פעילה", "יחס_דיבור_הקשבה", "זרימה_ושטף", "הימנעות_מהצפה"},
	},
	{
		Key:        "הצגת_פתרון_והדגשת_ערך",
		Title:      "הצגת פתרון והדגשת ערך",
		Aliases:    Aliases{"הצגת_פתרון", "solution_presentation"},
		Parameters: []string{"פתרון_מותאם", "תועלות_וערכים", "בידול_מהמתחרים", "שימוש_בסיפורי_הצלחה"},
	},
	{
		Key:        "טיפול_בהתנגדויות",
		Title:      "טיפול בהתנגדויות",
		Aliases:    Aliases{"objection_handling", "objections"},
		Parameters: []string{"זיהוי_התנגדות_אמיתית", "הכלה_ואמפתיה", "מענה_ענייני", "ביטחון_בתשובה"},
	},
	{
		Key:        "הנעה_לפעולה_וסגירה",
		Title:      "הנעה לפעולה וסגירה",
		Aliases:    Aliases{"סגירה_והנעה_לפעולה", "סגירה", "closing"},
		Parameters: []string{"הנעה_לפעולה", "הצעת_מחיר_בזמן_הנכון", "סגירה_ברורה", "טיפול_בספקות_אחרונים"},
	},
	{
		Key:        "שפת_תקשורת",
		Title:      "שפת תקשורת",
		Aliases:    Aliases{"סגנון_תקשורת", "communication_style", "communication"},
		Parameters: []string{"התלהבות_ואנרגיה", "שפה_חיובית_ונחרצת", "שימוש_בשם_הלקוח", "מקצועיות_לשונית"},
	},
	{
		Key:        "סיכום_שיחה",
		Title:      "סיכום שיחה",
		Aliases:    Aliases{"סיכום_ופרידה", "wrap_up", "summary_and_wrap_up"},
		Parameters: []string{"סיכום_ברור", "צעדים_הבאים", "פרידה_אישית"},
	},
}

// ParameterCount returns the number of parameters in the rubric.
func ParameterCount() int {
	n := 0
	for _, c := range Taxonomy {
		n += len(c.Parameters)
	}
	return n
}

// ParameterScore is one scored rubric parameter
type ParameterScore struct {
	Key               string `json:"key"`
	Score             int    `json:"score"`
	Insights          string `json:"insights,omitempty"`
	ImprovementAdvice string `json:"improvement_advice,omitempty"`
}

// CategoryReport groups the scored parameters of one category
type CategoryReport struct {
	Key        string           `json:"key"`
	Title      string           `json:"title"`
	Parameters []ParameterScore `json:"parameters"`
	Average    float64          `json:"average"`
}

// Quote is an excerpt from the call cited by the content model
type Quote struct {
	Quote            string   `json:"quote"`
	Category         string   `json:"category,omitempty"`
	Note             string   `json:"note,omitempty"`
	TimestampSeconds *float64 `json:"timestamp_seconds,omitempty"`
}

// ContentReport is the rubric assessment of a call. Categories the model did
// not score are absent, not zero.
type ContentReport struct {
	OverallScore             *float64         `json:"overall_score,omitempty"`
	RedFlag                  bool             `json:"red_flag"`
	Summary                  string           `json:"summary,omitempty"`
	Categories               []CategoryReport `json:"categories,omitempty"`
	RedFlags                 []string         `json:"red_flags,omitempty"`
	KeyInsights              []string         `json:"key_insights,omitempty"`
	ImprovementPoints        []string         `json:"improvement_points,omitempty"`
	Strengths                []string         `json:"strengths,omitempty"`
	PracticalRecommendations []string         `json:"practical_recommendations,omitempty"`
	Quotes                   []Quote          `json:"quotes,omitempty"`
	RecoveryInfo             *RecoveryInfo    `json:"recovery_info,omitempty"`
}

// Category returns the scored category with the given key.
func (r *ContentReport) Category(key string) (*CategoryReport, bool) {
	for i := range r.Categories {
		if r.Categories[i].Key == key {
			return &r.Categories[i], true
		}
	}
	return nil, false
}

// CategoryAverage is the arithmetic mean of the scores rounded to one decimal.
func CategoryAverage(scores []int) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0
	for _, s := range scores {
		sum += s
	}
	return math.Round(float64(sum)/float64(len(scores))*10) / 10
}

// ParseContentReport resolves a repaired model object into a ContentReport.
// The model's overall_score is kept as reported; it is never recomputed here.
func ParseContentReport(obj map[string]interface{}) *ContentReport {
	r := &ContentReport{
		Summary:                  summaryAliases.String(obj),
		KeyInsights:              keyInsightAliases.StringList(obj),
		ImprovementPoints:        improvementAliases.StringList(obj),
		Strengths:                strengthAliases.StringList(obj),
		PracticalRecommendations: recommendationAliases.StringList(obj),
		RecoveryInfo:             parseRecoveryInfo(obj),
	}

	if score, ok := overallScoreAliases.Float(obj); ok {
		r.OverallScore = &score
	}

	if v, ok := redFlagListAliases.Lookup(obj); ok {
		r.RedFlags = toStringList(v)
	}
	if redFlagAliases.Has(obj) {
		r.RedFlag = redFlagAliases.Bool(obj)
	} else {
		r.RedFlag = len(r.RedFlags) > 0
	}

	container, _ := detailedScoreAliases.Map(obj)
	for _, cat := range Taxonomy {
		raw, ok := findCategory(cat, container)
		if !ok {
			raw, ok = findCategory(cat, obj)
		}
		if !ok {
			continue
		}
		if cr, ok := parseCategory(cat, raw); ok {
			r.Categories = append(r.Categories, cr)
		}
	}

	if v, ok := quoteListAliases.Lookup(obj); ok {
		r.Quotes = parseQuotes(v)
	}

	return r
}

func findCategory(cat Category, obj map[string]interface{}) (map[string]interface{}, bool) {
	if obj == nil {
		return nil, false
	}
	names := append(Aliases{cat.Key, cat.Title}, cat.Aliases...)
	return names.Map(obj)
}

func parseCategory(cat Category, raw map[string]interface{}) (CategoryReport, bool) {
	cr := CategoryReport{Key: cat.Key, Title: cat.Title}
	seen := make(map[string]bool)

	add := func(key string, v interface{}) {
		if seen[key] || categoryMetadataFields.Matches(key) {
			return
		}
		p, ok := parseParameter(key, v)
		if !ok {
			return
		}
		seen[key] = true
		cr.Parameters = append(cr.Parameters, p)
	}

	// rubric order first, then anything else the model added
	keys := sortedKeys(raw)
	for _, name := range cat.Parameters {
		for _, k := range keys {
			if foldKey(k) == foldKey(name) {
				add(k, raw[k])
			}
		}
	}
	for _, k := range keys {
		add(k, raw[k])
	}

	if len(cr.Parameters) == 0 {
		return cr, false
	}

	scores := make([]int, len(cr.Parameters))
	for i, p := range cr.Parameters {
		scores[i] = p.Score
	}
	cr.Average = CategoryAverage(scores)
	return cr, true
}

func parseParameter(key string, v interface{}) (ParameterScore, bool) {
	p := ParameterScore{Key: key}
	switch t := v.(type) {
	case map[string]interface{}:
		score, ok := paramScoreAliases.Float(t)
		if !ok {
			return p, false
		}
		p.Score = int(math.Round(ClampScore(score)))
		p.Insights = paramInsightAliases.String(t)
		p.ImprovementAdvice = paramAdviceAliases.String(t)
	default:
		score, ok := toFloat(t)
		if !ok {
			return p, false
		}
		p.Score = int(math.Round(ClampScore(score)))
	}
	return p, true
}

func parseQuotes(v interface{}) []Quote {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	quotes := make([]Quote, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case string:
			quotes = append(quotes, Quote{Quote: t})
		case map[string]interface{}:
			q := Quote{
				Quote:    quoteTextAliases.String(t),
				Category: quoteCategoryAliases.String(t),
				Note:     quoteNoteAliases.String(t),
			}
			if ts, ok := quoteTimestampAliases.Float(t); ok {
				q.TimestampSeconds = &ts
			}
			if q.Quote != "" {
				quotes = append(quotes, q)
			}
		}
	}
	return quotes
}
