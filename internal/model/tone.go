package model

// ToneReport field labels as emitted by the tone model
const (
	ToneKeyOverall         = "טון_כללי"
	ToneKeyEnergy          = "רמת_אנרגיה"
	ToneKeyProfessionalism = "מקצועיות"
	ToneKeyPositivity      = "חיוביות"
	ToneKeyRedFlags        = "דגלים_אדומים"
	ToneKeyProsody         = "ניתוח_פרוזודי"
	ToneKeyScore           = "ציון_טונציה"
	ToneKeyImprovements    = "המלצות_שיפור"
	ToneKeyStrengths       = "נקודות_חוזק_טונליות"

	FlagShouting       = "צעקות_זוהו"
	FlagHighPressure   = "לחץ_גבוה"
	FlagImpatience     = "חוסר_סבלנות"
	FlagAggressiveness = "אגרסיביות"
	FlagUnprofessional = "טון_לא_מקצועי"

	KeyRecoveryInfo = "recovery_info"
)

// Tone score bounds
const (
	MinScore = 3
	MaxScore = 10
)

// ToneRedFlags are the fixed acoustic red flags
type ToneRedFlags struct {
	ShoutingDetected   bool `json:"צעקות_זוהו"`
	HighPressure       bool `json:"לחץ_גבוה"`
	Impatience         bool `json:"חוסר_סבלנות"`
	Aggressiveness     bool `json:"אגרסיביות"`
	UnprofessionalTone bool `json:"טון_לא_מקצועי"`
}

// Any reports whether any flag is raised.
func (f ToneRedFlags) Any() bool {
	return f.ShoutingDetected || f.HighPressure || f.Impatience || f.Aggressiveness || f.UnprofessionalTone
}

// Critical is the subset that marks a tone-only call as a red flag.
func (f ToneRedFlags) Critical() bool {
	return f.ShoutingDetected || f.HighPressure || f.Impatience
}

// Raised lists the labels of the raised flags.
func (f ToneRedFlags) Raised() []string {
	var out []string
	for _, fl := range []struct {
		label string
		on    bool
	}{
		{FlagShouting, f.ShoutingDetected},
		{FlagHighPressure, f.HighPressure},
		{FlagImpatience, f.Impatience},
		{FlagAggressiveness, f.Aggressiveness},
		{FlagUnprofessional, f.UnprofessionalTone},
	} {
		if fl.on {
			out = append(out, fl.label)
		}
	}
	return out
}

// ToneReport is the paralinguistic assessment of a call
type ToneReport struct {
	OverallTone            string        `json:"טון_כללי"`
	EnergyLevel            string        `json:"רמת_אנרגיה"`
	Professionalism        string        `json:"מקצועיות"`
	Positivity             string        `json:"חיוביות"`
	RedFlags               ToneRedFlags  `json:"דגלים_אדומים"`
	ProsodicAnalysis       string        `json:"ניתוח_פרוזודי"`
	Score                  float64       `json:"ציון_טונציה"`
	ImprovementSuggestions []string      `json:"המלצות_שיפור"`
	Strengths              []string      `json:"נקודות_חוזק_טונליות"`
	RecoveryInfo           *RecoveryInfo `json:"recovery_info,omitempty"`
}

// RecoveryInfo is diagnostic metadata attached to reports built by repair fallbacks
type RecoveryInfo struct {
	Method         string `json:"method"`
	OriginalError  string `json:"original_error,omitempty"`
	ContentPreview string `json:"content_preview,omitempty"`
}

// ParseToneReport resolves a repaired model object into a ToneReport.
func ParseToneReport(obj map[string]interface{}) *ToneReport {
	r := &ToneReport{
		OverallTone:            toneOverallAliases.String(obj),
		EnergyLevel:            toneEnergyAliases.String(obj),
		Professionalism:        toneProfessionalismAliases.String(obj),
		Positivity:             tonePositivityAliases.String(obj),
		ProsodicAnalysis:       toneProsodyAliases.String(obj),
		ImprovementSuggestions: toneImprovementAliases.StringList(obj),
		Strengths:              toneStrengthAliases.StringList(obj),
		RecoveryInfo:           parseRecoveryInfo(obj),
	}

	if score, ok := toneScoreAliases.Float(obj); ok {
		r.Score = ClampScore(score)
	} else {
		r.Score = MinScore
	}

	if flags, ok := toneRedFlagAliases.Map(obj); ok {
		r.RedFlags = ToneRedFlags{
			ShoutingDetected:   flagShoutingAliases.Bool(flags),
			HighPressure:       flagPressureAliases.Bool(flags),
			Impatience:         flagImpatienceAliases.Bool(flags),
			Aggressiveness:     flagAggressionAliases.Bool(flags),
			UnprofessionalTone: flagUnprofessionalAliases.Bool(flags),
		}
	}

	return r
}

func parseRecoveryInfo(obj map[string]interface{}) *RecoveryInfo {
	m, ok := obj[KeyRecoveryInfo].(map[string]interface{})
	if !ok {
		return nil
	}
	info := &RecoveryInfo{}
	info.Method, _ = m["method"].(string)
	info.OriginalError, _ = m["original_error"].(string)
	info.ContentPreview, _ = m["content_preview"].(string)
	return info
}

// ClampScore bounds a rubric score to [MinScore, MaxScore].
func ClampScore(v float64) float64 {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}
