package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/aretw0/chequeflow/pkg/domain"
)

// Message is one JSON line written by the JSONHandler.
type Message struct {
	Type    string                 `json:"type"` // view, ask, system
	View    *domain.ViewDescriptor `json:"view,omitempty"`
	Field   string                 `json:"field,omitempty"`
	Message string                 `json:"message,omitempty"`
}

// JSONHandler implements the IOHandler interface for structured JSON-Lines communication.
type JSONHandler struct {
	Reader  *bufio.Reader
	Writer  io.Writer
	Encoder *json.Encoder
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Writer:  w,
		Encoder: json.NewEncoder(w),
	}
}

func (h *JSONHandler) Output(ctx context.Context, view domain.ViewDescriptor) error {
	return h.Encoder.Encode(Message{Type: "view", View: &view})
}

// Input reads a line: either a JSON command object, a JSON string or raw text.
func (h *JSONHandler) Input(ctx context.Context) (string, error) {
	return h.readLine()
}

func (h *JSONHandler) Ask(ctx context.Context, field string) (string, error) {
	if err := h.Encoder.Encode(Message{Type: "ask", Field: field}); err != nil {
		return "", err
	}
	return h.readLine()
}

func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	return h.Encoder.Encode(Message{Type: "system", Message: msg})
}

func (h *JSONHandler) readLine() (string, error) {
	text, err := h.Reader.ReadString('\n')
	if err != nil && (err != io.EOF || strings.TrimSpace(text) == "") {
		return "", err
	}
	text = strings.TrimSpace(text)

	var val string
	if err := json.Unmarshal([]byte(text), &val); err == nil {
		return val, nil
	}
	return text, nil
}
