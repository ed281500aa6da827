// Package transcription defines the speech-to-text capability consumed by
// the recorder and implements it against the OpenAI-compatible Whisper APIs
// offered by OpenAI and Groq.
package transcription
