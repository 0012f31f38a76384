package model

import (
	"path"
	"strings"
)

// TranscriptSegment is a time-aligned span of the transcript
type TranscriptSegment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptWord is a single time-aligned word
type TranscriptWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Transcript is the output of the transcription stage. Segments and words
// may be empty when the backend does not return them.
type Transcript struct {
	Text     string              `json:"text"`
	Language string              `json:"language,omitempty"`
	Duration float64             `json:"duration,omitempty"`
	Segments []TranscriptSegment `json:"segments"`
	Words    []TranscriptWord    `json:"words"`
}

// AudioFormat is the container and MIME type of an audio asset
type AudioFormat struct {
	Extension string
	MIMEType  string
}

var audioMIMETypes = map[string]string{
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"m4a":  "audio/mp4",
	"mp4":  "audio/mp4",
	"aac":  "audio/aac",
	"webm": "audio/webm",
	"ogg":  "audio/ogg",
	"wma":  "audio/x-ms-wma",
	"flac": "audio/flac",
}

// SupportedUploadFormats are the containers accepted at upload time.
var SupportedUploadFormats = []string{"mp3", "wav", "m4a", "mp4", "aac", "webm", "ogg", "wma"}

// DetectAudioFormat infers the container from the file extension and replaces
// a generic or missing content type with the one matching the extension.
func DetectAudioFormat(filePath, reportedType string) AudioFormat {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filePath), "."))
	reported := strings.ToLower(strings.TrimSpace(strings.Split(reportedType, ";")[0]))

	format := AudioFormat{Extension: ext, MIMEType: reported}
	if isGenericContentType(reported) {
		if mime, ok := audioMIMETypes[ext]; ok {
			format.MIMEType = mime
		} else {
			format.MIMEType = "application/octet-stream"
		}
	}
	return format
}

// FileName returns a name the speech backend can sniff the container from.
func (f AudioFormat) FileName() string {
	if f.Extension == "" {
		return "audio"
	}
	return "audio." + f.Extension
}

func isGenericContentType(ct string) bool {
	switch ct {
	case "", "application/octet-stream", "binary/octet-stream", "application/binary", "application/unknown":
		return true
	}
	return !strings.HasPrefix(ct, "audio/") && !strings.HasPrefix(ct, "video/")
}
