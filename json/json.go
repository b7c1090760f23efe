// Package json persists transcripts as versioned JSON files.
package json

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xenophobed/chatstream"
)

// envelope is the v1 wire format for a persisted transcript.
type envelope struct {
	Version   int        `json:"version"`
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Entries   []entryDTO `json:"entries"`
}

type entryDTO struct {
	Kind      string    `json:"kind"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MarshalTranscript serializes a Transcript to JSON in v1 envelope format.
func MarshalTranscript(t chatstream.Transcript) ([]byte, error) {
	env := envelope{
		Version:   1,
		ID:        t.ID,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
		Entries:   make([]entryDTO, len(t.Entries)),
	}
	for i, e := range t.Entries {
		env.Entries[i] = entryDTO{Kind: e.Kind, Text: e.Text, Timestamp: e.Timestamp}
	}
	return json.MarshalIndent(env, "", "  ")
}

// UnmarshalTranscript deserializes a Transcript from JSON in v1 envelope format.
func UnmarshalTranscript(data []byte) (chatstream.Transcript, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return chatstream.Transcript{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != 1 {
		return chatstream.Transcript{}, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}
	entries := make([]chatstream.TranscriptEntry, len(env.Entries))
	for i, dto := range env.Entries {
		entries[i] = chatstream.TranscriptEntry{Kind: dto.Kind, Text: dto.Text, Timestamp: dto.Timestamp}
	}
	return chatstream.Transcript{
		ID:        env.ID,
		CreatedAt: env.CreatedAt,
		UpdatedAt: env.UpdatedAt,
		Entries:   entries,
	}, nil
}

// Save writes a Transcript to a JSON file, creating parent directories as
// needed. The write is atomic: data lands in a temp file first.
func Save(path string, t chatstream.Transcript) error {
	data, err := MarshalTranscript(t)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Load reads a Transcript from a JSON file.
func Load(path string) (chatstream.Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return chatstream.Transcript{}, fmt.Errorf("read file: %w", err)
	}
	return UnmarshalTranscript(data)
}
