package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coachcall/api/internal/model"
)

const jsonReminder = "\nהחזר תמיד JSON."

// toneSystemPrompt fixes the ToneReport schema and the scoring rubric.
const toneSystemPrompt = `אתה מומחה בניתוח טון, רגש ופרוזודיה בשיחות טלפוניות בעברית.
התפקיד שלך הוא לנתח במדויק את הטון הרגשי, איכות הקול, קצב הדיבור והפרוזודיה הכללית של הדובר.

אתה מנתח:
1. טון רגשי (חיובי/שלילי/נייטרלי, ידידותי/קר/אגרסיבי)
2. רמת אנרגיה (נמוכה/בינונית/גבוהה)
3. מקצועיות (גבוהה/בינונית/נמוכה)
4. חיוביות כללית
5. דגלים אדומים (צעקות, לחץ, חוסר סבלנות, אגרסיביות)
6. ניתוח פרוזודי מפורט (קצב, הפסקות, עוצמה, אינטונציה)

סולם הציונים: 3 = נדיר או גרוע מאוד, 4-6 = נמוך, 7-8 = טוב, 9-10 = מצוין.

החזר תמיד JSON במבנה קבוע:
{
  "טון_כללי": "תיאור הטון הכללי של השיחה",
  "רמת_אנרגיה": "תיאור רמת האנרגיה",
  "מקצועיות": "הערכת רמת המקצועיות",
  "חיוביות": "הערכת רמת החיוביות",
  "דגלים_אדומים": {
    "צעקות_זוהו": boolean,
    "לחץ_גבוה": boolean,
    "חוסר_סבלנות": boolean,
    "אגרסיביות": boolean,
    "טון_לא_מקצועי": boolean
  },
  "ניתוח_פרוזודי": "ניתוח קצב דיבור, הפסקות, עוצמה ואינטונציה",
  "ציון_טונציה": number,
  "המלצות_שיפור": ["המלצות לשיפור הטון והמקצועיות"],
  "נקודות_חוזק_טונליות": ["נקודות חוזק בטון ובאופן התקשורת"]
}`

// toneUserPrompt asks for an audio-only read when no transcript exists.
func toneUserPrompt(callType string, transcript *string) string {
	var b strings.Builder
	b.WriteString("נתח את הטון, האנרגיה, המקצועיות והפרוזודיה של השיחה הבאה.\n")
	b.WriteString("זהה דגלים אדומים וספק המלצות מקצועיות לשיפור.\n\n")
	fmt.Fprintf(&b, "סוג השיחה: %s\n", callType)
	if transcript != nil && strings.TrimSpace(*transcript) != "" {
		fmt.Fprintf(&b, "תמליל השיחה: %s\n", *transcript)
	} else {
		b.WriteString("לא קיים תמליל זמין. נתח את הטונציה ורמת האנרגיה מהאודיו בלבד.\n")
		b.WriteString("שים לב: התמלול נכשל, לכן התמקד בניתוח טונאלי מהאודיו ובזיהוי דגלים אדומים אקוסטיים.\n")
	}
	b.WriteString("\nהקפד להחזיר את התשובה בפורמט JSON המדויק שצוין למעלה.")
	return b.String()
}

// defaultContentPrompt is used when no category prompt is registered. It
// spells out the full rubric so the model emits every category key.
func defaultContentPrompt() string {
	var b strings.Builder
	b.WriteString("אתה מומחה בניתוח שיחות מכירה ושירות בעברית. נתח את השיחה המצורפת והערך אותה לפי המחוון הבא.\n")
	fmt.Fprintf(&b, "המחוון כולל %d קטגוריות ו-%d פרמטרים. לכל פרמטר תן ציון בין 3 ל-10, תובנות והמלצה לשיפור:\n", len(model.Taxonomy), model.ParameterCount())
	for i, c := range model.Taxonomy {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, c.Key, strings.Join(c.Parameters, ", "))
	}
	b.WriteString(`
מבנה כל פרמטר: {"ציון": number, "תובנות": "string", "איך_משפרים": "string"}.
כלול גם: "overall_score" (3-10), "red_flag" (boolean), "סיכום_כללי", "נקודות_לשיפור", "נקודות_חוזק_לשימור", "המלצות_פרקטיות", "ציטוטים".
אם הציון בפרמטר נמוך מ-7, סמן אותו כדגל אדום לטיפול מיידי.
החזר אובייקט JSON אחד בלבד.`)
	return b.String()
}

// withJSONReminder appends the JSON instruction when the prompt lacks it.
func withJSONReminder(prompt string) string {
	if strings.Contains(prompt, "JSON") {
		return prompt
	}
	return prompt + jsonReminder
}

const maxPromptSegments = 10

// contentUserPrompt assembles the per-call content analysis request.
func contentUserPrompt(in *ContentInput) string {
	var b strings.Builder
	b.WriteString("נתח את השיחה הבאה:\n")
	fmt.Fprintf(&b, "סוג שיחה: %s\n", in.Call.CallType)
	if in.Transcript != nil && strings.TrimSpace(*in.Transcript) != "" {
		fmt.Fprintf(&b, "תמליל השיחה: %s\n", *in.Transcript)
	} else {
		b.WriteString("תמליל השיחה: לא זמין (התמלול נכשל). התבסס על ניתוח הטונציה ועל המידע הנוסף בלבד.\n")
	}

	b.WriteString("\nמידע נוסף:\n")
	if bc := in.Context; bc != nil {
		if bc.CompanyName != "" {
			fmt.Fprintf(&b, "חברה: %s\n", bc.CompanyName)
		}
		if bc.UserRole != "" {
			fmt.Fprintf(&b, "תפקיד המשתמש: %s\n", bc.UserRole)
		}
		if bc.HasQuestionnaire() {
			b.WriteString("שאלון עסקי:\n")
			writeField(&b, "תחום", bc.Industry)
			writeField(&b, "מוצר/שירות", bc.ProductService)
			writeField(&b, "קהל יעד", bc.TargetAudience)
			writeField(&b, "בידול מרכזי", bc.KeyDifferentiator)
			writeField(&b, "תועלות ללקוח", bc.CustomerBenefits)
		}
	}
	if in.Call.CustomerName != "" {
		fmt.Fprintf(&b, "שם הלקוח: %s\n", in.Call.CustomerName)
	}
	if in.Call.AgentNotes != "" {
		fmt.Fprintf(&b, "הערות נציג: %s\n", in.Call.AgentNotes)
	}
	if in.Call.AnalysisNotes != "" {
		fmt.Fprintf(&b, "\n🎯 פרמטרים מיוחדים לניתוח זה:\n%s\n", in.Call.AnalysisNotes)
		b.WriteString("⚠️ חשוב: התמקד במיוחד בפרמטרים הנ\"ל ותן להם משקל גבוה יותר בהערכה הכללית.\n")
	}

	b.WriteString("\nמידע זמנים מהתמליל (למיקום מדויק של ציטוטים):\n")
	if len(in.Segments) > 0 {
		segs := in.Segments[:min(len(in.Segments), maxPromptSegments)]
		data, _ := json.Marshal(segs)
		fmt.Fprintf(&b, "רגעי זמן מפורטים: %s\n", data)
	} else {
		b.WriteString("לא זמין מידע זמנים\n")
	}

	b.WriteString(`
הנחיות נוספות:
1. כלול ציטוטים רלוונטיים מהשיחה תחת השדה 'ציטוטים'
2. עבור כל פרמטר שבו נמצאו בעיות, הוסף ציטוט המדגים את הבעיה
3. לכל ציטוט ספק timestamp_seconds בהתבסס על מידע הזמנים
4. הצע חלופה מילולית לכל ציטוט בעייתי
5. פורמט הציטוט: {"text": "הציטוט", "timestamp_seconds": מספר, "comment": "הערה", "category": "קטגוריה"}
`)
	if in.Call.AnalysisNotes != "" {
		b.WriteString("6. ודא שהניתוח מתייחס לפרמטרים המיוחדים שצוינו למעלה\n")
	}

	if in.Tone != nil {
		data, _ := json.Marshal(in.Tone)
		fmt.Fprintf(&b, "\nניתוח טונציה: %s\n", data)
	} else {
		b.WriteString("\nניתוח טונציה: לא זמין\n")
	}
	b.WriteString("הקפד להחזיר את התשובה בפורמט JSON.")
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}
