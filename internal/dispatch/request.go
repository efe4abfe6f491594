package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
	"unicode/utf8"

	"github.com/dohr-michael/quill/internal/models"
	"github.com/dohr-michael/quill/internal/prompt"
)

// Request is a validated generation request.
type Request struct {
	Prompt  string      `json:"prompt"`
	Mode    prompt.Mode `json:"mode"`
	Command string      `json:"command,omitempty"`
}

// wireRequest is the accepted JSON shape. Editors that predate "mode"
// send the same value as "option".
type wireRequest struct {
	Prompt  *string `json:"prompt"`
	Mode    string  `json:"mode"`
	Option  string  `json:"option"`
	Command string  `json:"command"`
}

func decodeError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return &ValidationError{Status: http.StatusRequestEntityTooLarge, Message: "request body too large"}
	}
	return invalid("invalid JSON body")
}

// DecodeRequest reads and validates one request body. A maxPromptChars of
// zero disables the length check.
func DecodeRequest(r io.Reader, maxPromptChars int) (Request, error) {
	var wire wireRequest
	dec := json.NewDecoder(r)
	if err := dec.Decode(&wire); err != nil {
		return Request{}, decodeError(err)
	}
	// the body holds exactly one object
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			return Request{}, invalid("invalid JSON body")
		}
		return Request{}, decodeError(err)
	}

	if wire.Prompt == nil {
		return Request{}, invalid("prompt is required")
	}
	text := *wire.Prompt
	if n := utf8.RuneCountInString(text); maxPromptChars > 0 && n > maxPromptChars {
		return Request{}, invalid(fmt.Sprintf("prompt too long: %d characters (max %d)", n, maxPromptChars))
	}

	name := wire.Mode
	if name == "" {
		name = wire.Option
	}
	req := Request{Prompt: text, Mode: prompt.ParseMode(name), Command: wire.Command}

	switch {
	case req.Mode == prompt.ApplyCommand && strings.TrimSpace(req.Command) == "":
		return Request{}, invalid("command is required for mode apply-command")
	case req.Mode.IsRefinement() && strings.TrimSpace(req.Prompt) == "":
		return Request{}, invalid(fmt.Sprintf("prompt is required for mode %s", req.Mode))
	}
	return req, nil
}

// ValidationError is a malformed or incomplete request. Its message is safe
// to return to the caller.
type ValidationError struct {
	Status  int
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) *ValidationError {
	return &ValidationError{Status: http.StatusBadRequest, Message: msg}
}

// ConfigurationError reports a generator credential that is missing or
// unusable. The message includes a remediation hint.
type ConfigurationError struct {
	Err *models.CredentialError
}

func (e *ConfigurationError) Error() string { return e.Err.Error() }

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Message is the caller-facing text.
func (e *ConfigurationError) Message() string {
	return fmt.Sprintf("%s. %s", e.Err.Error(), e.Err.Hint())
}

// UnexpectedError wraps a recovered panic.
type UnexpectedError struct {
	Value any
	Stack []byte
}

func newUnexpected(v any) *UnexpectedError {
	return &UnexpectedError{Value: v, Stack: debug.Stack()}
}

func (e *UnexpectedError) Error() string { return fmt.Sprintf("unexpected panic: %v", e.Value) }

func (e *UnexpectedError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
