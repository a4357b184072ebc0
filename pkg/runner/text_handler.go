package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aretw0/chequeflow/internal/presentation/tui"
	"github.com/aretw0/chequeflow/pkg/domain"
	"golang.org/x/term"
)

// TextHandler implements the standard text-based interface.
type TextHandler struct {
	Reader   *bufio.Reader
	Writer   io.Writer
	Renderer ContentRenderer

	inputChan chan inputResult
	startOnce sync.Once
}

type inputResult struct {
	text string
	err  error
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer configures the content renderer.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{
		Reader: bufio.NewReader(r),
		Writer: w,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// initPump reads lines in the background so Input can honor cancellation.
// Lines read after the runner stops are dropped with the goroutine.
func (h *TextHandler) initPump() {
	h.startOnce.Do(func() {
		h.inputChan = make(chan inputResult)
		go func() {
			for {
				text, err := h.Reader.ReadString('\n')
				if err != nil && text != "" {
					// Deliver a final unterminated line before the error.
					h.inputChan <- inputResult{text: text}
				}
				if err != nil {
					h.inputChan <- inputResult{err: err}
					close(h.inputChan)
					return
				}
				h.inputChan <- inputResult{text: text}
			}
		}()
	})
}

func (h *TextHandler) Output(ctx context.Context, view domain.ViewDescriptor) error {
	output := tui.FormatView(view)
	if h.Renderer != nil {
		if rendered, err := h.Renderer(output); err == nil {
			output = rendered
		}
	}
	_, err := fmt.Fprintln(h.Writer, strings.TrimRight(output, "\n"))
	return err
}

func (h *TextHandler) Input(ctx context.Context) (string, error) {
	fmt.Fprint(h.Writer, "> ")
	return h.read(ctx)
}

func (h *TextHandler) Ask(ctx context.Context, field string) (string, error) {
	fmt.Fprintf(h.Writer, "%s: ", field)
	return h.read(ctx)
}

func (h *TextHandler) SystemOutput(ctx context.Context, msg string) error {
	_, err := fmt.Fprintf(h.Writer, "[%s]\n", msg)
	return err
}

func (h *TextHandler) read(ctx context.Context) (string, error) {
	h.initPump()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-h.inputChan:
		if !ok {
			return "", io.EOF
		}
		if res.err != nil {
			return "", res.err
		}
		return strings.TrimSpace(res.text), nil
	}
}
