package protocol

import "time"

// SpeechRequest asks the runtime to synthesize an utterance.
type SpeechRequest struct {
	SessionID string  `json:"session_id"`
	Text      string  `json:"text"`
	Voice     string  `json:"voice,omitempty"`
	Language  string  `json:"language,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
}

// AudioChunk carries one synthesized chunk of PCM audio on the bus.
// Sequence numbers start at zero and are strictly increasing per session.
type AudioChunk struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// SpeechStatus reports the outcome of a synthesis request.
type SpeechStatus struct {
	SessionID    string    `json:"session_id"`
	Status       string    `json:"status"`
	Chunks       int       `json:"chunks"`
	FailedChunks int       `json:"failed_chunks,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

const (
	SubjectSpeechRequest = "speech.request"
	SubjectSpeechAudio   = "speech.audio"
	SubjectSpeechDone    = "speech.done"
)
