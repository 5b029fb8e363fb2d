package inference

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxInputChars keeps a single record well under the model context window.
const maxInputChars = 24000

// PayloadBuilder renders model inputs in the Bedrock messages format. The
// prompt text itself comes from configuration.
type PayloadBuilder struct {
	Prompt           string
	MaxTokens        int
	AnthropicVersion string
}

type messagesRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Messages         []message `json:"messages"`
}

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// TextOnly builds a payload carrying only text.
func (b PayloadBuilder) TextOnly(title, text string) (json.RawMessage, error) {
	return b.render(nil, title, text)
}

// Multimodal builds a payload carrying an image followed by text.
func (b PayloadBuilder) Multimodal(title, text string, image []byte, mediaType string) (json.RawMessage, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("inference: multimodal payload needs an image")
	}
	img := &contentPart{
		Type: "image",
		Source: &imageSource{
			Type:      "base64",
			MediaType: mediaType,
			Data:      base64.StdEncoding.EncodeToString(image),
		},
	}
	return b.render(img, title, text)
}

func (b PayloadBuilder) render(img *contentPart, title, text string) (json.RawMessage, error) {
	parts := make([]contentPart, 0, 2)
	if img != nil {
		parts = append(parts, *img)
	}
	parts = append(parts, contentPart{Type: "text", Text: b.promptText(title, text)})

	req := messagesRequest{
		AnthropicVersion: b.AnthropicVersion,
		MaxTokens:        b.MaxTokens,
		Messages:         []message{{Role: "user", Content: parts}},
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("inference: marshal payload: %w", err)
	}
	return raw, nil
}

func (b PayloadBuilder) promptText(title, text string) string {
	text = strings.TrimSpace(text)
	text = truncate(text, maxInputChars)
	var sb strings.Builder
	if b.Prompt != "" {
		sb.WriteString(b.Prompt)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Title: ")
	sb.WriteString(title)
	sb.WriteString("\n\n")
	sb.WriteString(text)
	return sb.String()
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
