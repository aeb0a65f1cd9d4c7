// Package stream frames a complete assistant reply as an OpenAI-style
// chat.completion.chunk event stream: a role chunk, a content chunk, a stop
// chunk and the [DONE] marker. Generation is not streamed internally; only the
// wire format is.
package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ContentType is the media type of the event stream.
const ContentType = "text/event-stream; charset=utf-8"

// Done is the terminal data line.
const Done = "[DONE]"

// Delta is the incremental part of a chunk.
type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// Choice is one choice of a chunk.
type Choice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Chunk is one event payload.
type Chunk struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

// Frames returns the three chunks that carry text.
func Frames(id, model, text string, created time.Time) []Chunk {
	stop := "stop"
	mk := func(d Delta, finish *string) Chunk {
		return Chunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created.Unix(),
			Model:   model,
			Choices: []Choice{{Index: 0, Delta: d, FinishReason: finish}},
		}
	}
	return []Chunk{
		mk(Delta{Role: "assistant"}, nil),
		mk(Delta{Content: text}, nil),
		mk(Delta{}, &stop),
	}
}

// SetHeaders prepares w for an event stream.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Write emits every frame of text followed by the terminal marker, flushing
// after each event when w supports it.
func Write(w io.Writer, id, model, text string, created time.Time) error {
	flusher, _ := w.(http.Flusher)
	for _, c := range Frames(id, model, text, created) {
		payload, err := json.Marshal(c)
		if err != nil {
			return err
		}
		if err := writeEvent(w, string(payload)); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	if err := writeEvent(w, Done); err != nil {
		return err
	}
	if flusher != nil {
		flusher.Flush()
	}
	return nil
}

func writeEvent(w io.Writer, data string) error {
	for _, line := range strings.Split(data, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// Parse reads an event stream back into its text. It is the inverse of
// Write and is used by clients and tests.
func Parse(r io.Reader) (string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	done := false
	for _, event := range strings.Split(string(raw), "\n\n") {
		var data []string
		for _, line := range strings.Split(event, "\n") {
			if v, ok := strings.CutPrefix(line, "data: "); ok {
				data = append(data, v)
			}
		}
		if len(data) == 0 {
			continue
		}
		payload := strings.Join(data, "\n")
		if payload == Done {
			done = true
			break
		}
		var c Chunk
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			return "", fmt.Errorf("decode chunk: %w", err)
		}
		for _, ch := range c.Choices {
			b.WriteString(ch.Delta.Content)
		}
	}
	if !done {
		return b.String(), io.ErrUnexpectedEOF
	}
	return b.String(), nil
}
