// Package protocol defines the wire messages exchanged with the realtime
// speech provider over its websocket event protocol.
//
// Every frame in both directions is a JSON object tagged by a "type" field.
// Client messages are plain structs serialized as-is; server frames are
// decoded into a ServerEvent tagged union by ParseServerEvent.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Outbound message type tags.
const (
	TypeSessionUpdate    = "session.update"
	TypeInputAudioAppend = "input_audio_buffer.append"
	TypeResponseCreate   = "response.create"
	TypeResponseCancel   = "response.cancel"
)

// Inbound frame type tags.
const (
	TypeAudioDelta              = "response.audio.delta"
	TypeAudioTranscriptDelta    = "response.audio_transcript.delta"
	TypeAudioTranscriptDone     = "response.audio_transcript.done"
	TypeInputTranscriptionDone  = "conversation.item.input_audio_transcription.completed"
	TypeSpeechStarted           = "input_audio_buffer.speech_started"
	TypeSpeechStopped           = "input_audio_buffer.speech_stopped"
	TypeResponseCancelled       = "response.cancelled"
	TypeResponseDone            = "response.done"
	TypeResponseContentPartDone = "response.content_part.done"
	TypeError                   = "error"
)

// ErrCodeCancelNotActive is the provider's benign complaint when a cancel
// arrives after the response already finished. It is an expected race, not
// a failure.
const ErrCodeCancelNotActive = "response_cancel_not_active"

// AudioFormatPCM16 is the only audio encoding this protocol version uses:
// 16-bit signed little-endian PCM, 24 kHz, mono.
const AudioFormatPCM16 = "pcm16"

// SessionUpdate configures the remote session after connect.
type SessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

// SessionConfig is the session.update payload.
type SessionConfig struct {
	Modalities              []string            `json:"modalities"`
	Instructions            string              `json:"instructions"`
	Voice                   string              `json:"voice"`
	InputAudioFormat        string              `json:"input_audio_format"`
	OutputAudioFormat       string              `json:"output_audio_format"`
	InputAudioTranscription *AudioTranscription `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection      `json:"turn_detection,omitempty"`
	Temperature             float64             `json:"temperature,omitempty"`
}

// AudioTranscription selects the model used to transcribe inbound speech.
type AudioTranscription struct {
	Model string `json:"model"`
}

// TurnDetection configures the provider's server-side voice activity
// detector. The client performs no local VAD.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
}

// DefaultTurnDetection returns the server-VAD parameters the interview
// session uses: a lowered threshold and a short silence window so
// interruptions register quickly.
func DefaultTurnDetection() *TurnDetection {
	return &TurnDetection{
		Type:              "server_vad",
		Threshold:         0.5,
		PrefixPaddingMS:   300,
		SilenceDurationMS: 500,
	}
}

// InputAudioAppend carries one base64-encoded PCM16 microphone frame.
type InputAudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// ResponseCreate asks the provider to start generating a response.
type ResponseCreate struct {
	Type     string       `json:"type"`
	Response ResponseSpec `json:"response"`
}

// ResponseSpec configures a requested response.
type ResponseSpec struct {
	Modalities []string `json:"modalities"`
}

// ResponseCancel aborts the in-flight response, if any.
type ResponseCancel struct {
	Type string `json:"type"`
}

// ServerEvent is the tagged union over inbound frames.
type ServerEvent interface {
	eventType() string
}

// AudioDeltaEvent carries one base64-encoded chunk of synthesized speech.
type AudioDeltaEvent struct {
	Delta string
}

func (AudioDeltaEvent) eventType() string { return TypeAudioDelta }

// TranscriptDeltaEvent carries an incremental fragment of the bot's
// spoken-transcript text. Fragments are not transcript entries; they are
// buffered until the matching done event.
type TranscriptDeltaEvent struct {
	Delta string
}

func (TranscriptDeltaEvent) eventType() string { return TypeAudioTranscriptDelta }

// TranscriptDoneEvent finalizes the bot's utterance.
type TranscriptDoneEvent struct {
	Transcript string
}

func (TranscriptDoneEvent) eventType() string { return TypeAudioTranscriptDone }

// InputTranscriptionDoneEvent finalizes the user's utterance.
type InputTranscriptionDoneEvent struct {
	Transcript string
}

func (InputTranscriptionDoneEvent) eventType() string { return TypeInputTranscriptionDone }

// SpeechStartedEvent is the remote VAD's speech-onset signal.
type SpeechStartedEvent struct{}

func (SpeechStartedEvent) eventType() string { return TypeSpeechStarted }

// SpeechStoppedEvent is the remote VAD's speech-end signal.
type SpeechStoppedEvent struct{}

func (SpeechStoppedEvent) eventType() string { return TypeSpeechStopped }

// ResponseCancelledEvent acknowledges a ResponseCancel.
type ResponseCancelledEvent struct{}

func (ResponseCancelledEvent) eventType() string { return TypeResponseCancelled }

// ResponseDoneEvent marks natural completion of a response.
type ResponseDoneEvent struct{}

func (ResponseDoneEvent) eventType() string { return TypeResponseDone }

// ContentPartDoneEvent marks completion of one content part of a response.
type ContentPartDoneEvent struct{}

func (ContentPartDoneEvent) eventType() string { return TypeResponseContentPartDone }

// ErrorEvent is a provider-reported error. The payload shape varies, so the
// raw object is kept alongside the extracted code and message.
type ErrorEvent struct {
	Code    string
	Message string
	Raw     json.RawMessage
}

func (ErrorEvent) eventType() string { return TypeError }

// Benign reports whether this error is the expected cancel race and should
// not be surfaced.
func (e ErrorEvent) Benign() bool {
	return e.Code == ErrCodeCancelNotActive
}

// Empty reports whether the error payload carried no usable information.
// Empty errors are noise and must not alter session state.
func (e ErrorEvent) Empty() bool {
	return e.Code == "" && e.Message == ""
}

// UnknownEvent wraps a frame type this client does not handle. Unknown
// frame types are forward-compatible noise, never a decode error.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (e UnknownEvent) eventType() string { return e.Type }

// ParseServerEvent decodes one inbound text frame into a typed event.
func ParseServerEvent(data []byte) (ServerEvent, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode frame envelope: %w", err)
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, fmt.Errorf("frame missing type")
	}

	switch typ {
	case TypeAudioDelta:
		var frame struct {
			Delta string `json:"delta"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("decode %s: %w", typ, err)
		}
		return AudioDeltaEvent{Delta: frame.Delta}, nil
	case TypeAudioTranscriptDelta:
		var frame struct {
			Delta string `json:"delta"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("decode %s: %w", typ, err)
		}
		return TranscriptDeltaEvent{Delta: frame.Delta}, nil
	case TypeAudioTranscriptDone:
		var frame struct {
			Transcript string `json:"transcript"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("decode %s: %w", typ, err)
		}
		return TranscriptDoneEvent{Transcript: frame.Transcript}, nil
	case TypeInputTranscriptionDone:
		var frame struct {
			Transcript string `json:"transcript"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("decode %s: %w", typ, err)
		}
		return InputTranscriptionDoneEvent{Transcript: frame.Transcript}, nil
	case TypeSpeechStarted:
		return SpeechStartedEvent{}, nil
	case TypeSpeechStopped:
		return SpeechStoppedEvent{}, nil
	case TypeResponseCancelled:
		return ResponseCancelledEvent{}, nil
	case TypeResponseDone:
		return ResponseDoneEvent{}, nil
	case TypeResponseContentPartDone:
		return ContentPartDoneEvent{}, nil
	case TypeError:
		var frame struct {
			Error json.RawMessage `json:"error"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("decode %s: %w", typ, err)
		}
		code, message := extractError(frame.Error)
		return ErrorEvent{Code: code, Message: message, Raw: frame.Error}, nil
	default:
		return UnknownEvent{Type: typ, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

// extractError pulls a code and a human-readable message out of the
// provider's loosely shaped error payload. Supported shapes: plain string,
// object with message, object with code, object with type. An empty or
// absent payload yields empty strings.
func extractError(raw json.RawMessage) (code, message string) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", ""
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return "", strings.TrimSpace(asString)
	}

	var asObject struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Type    string `json:"type"`
	}
	if err := json.Unmarshal(raw, &asObject); err != nil {
		return "", ""
	}

	code = strings.TrimSpace(asObject.Code)
	switch {
	case strings.TrimSpace(asObject.Message) != "":
		message = strings.TrimSpace(asObject.Message)
	case code != "":
		message = "error code: " + code
	case strings.TrimSpace(asObject.Type) != "":
		message = "error type: " + strings.TrimSpace(asObject.Type)
	default:
		// A non-empty object with none of the known fields still deserves
		// a message; an empty object does not.
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err == nil && len(fields) > 0 {
			message = string(raw)
		}
	}
	return code, message
}
