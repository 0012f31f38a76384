package model

// User-facing messages written to error_message and returned to callers.
const (
	MsgTranscriptionFailed = "שגיאת תמלול: %s. ממשיך לניתוח טונאלי בלבד."
	MsgUnsupportedAudio    = "פורמט האודיו אינו נתמך לניתוח טונציה. יש להעלות את הקובץ מחדש באחד מהפורמטים הנתמכים: %s"
	MsgMissingAudio        = "לשיחה לא משויך קובץ אודיו"
	MsgAnalysisFailed      = "שגיאת ניתוח: %s"
	MsgPersistenceFailed   = "שגיאה בשמירת נתוני השיחה: %s"
	MsgCallNotFound        = "השיחה לא נמצאה"
	MsgCallInErrorState    = "השיחה במצב שגיאה ולא תעובד מחדש"
	MsgCompleted           = "ניתוח השיחה הושלם בהצלחה"
	MsgToneOnlyCompleted   = "ניתוח הטונציה הושלם בהצלחה"
	MsgToneFailed          = "ניתוח הטונציה נכשל: %s"
	MsgEnqueueFailed       = "השיחה נשמרה אך לא נכנסה לתור הניתוח: %s"
)
