package types

import "encoding/json"

// BatchRecord is one line of a batch input artifact.
type BatchRecord struct {
	RecordID   string          `json:"recordID"`
	ModelInput json.RawMessage `json:"modelInput"`
}

// OutputLine is one line of a batch output artifact. RecordID is set when the
// inference service echoes the input identifier.
type OutputLine struct {
	RecordID    string       `json:"recordId,omitempty"`
	ModelOutput *ModelOutput `json:"modelOutput"`
	Error       *LineError   `json:"error,omitempty"`
}

// ModelOutput is the message body returned by the model.
type ModelOutput struct {
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a single block of model output.
type ContentBlock struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text"`
}

// LineError is reported per line by the batch service when a record failed.
type LineError struct {
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Text returns the concatenated text blocks of the output.
func (m *ModelOutput) Text() string {
	if m == nil {
		return ""
	}
	out := ""
	for _, c := range m.Content {
		out += c.Text
	}
	return out
}
