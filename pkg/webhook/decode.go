package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/render"
)

// errNoPayload is returned when the request carries nothing to normalize.
var errNoPayload = errors.New("No payload received")

// invalidPayloadError reports a body that was present but not a JSON object.
type invalidPayloadError struct {
	err error
}

func (e *invalidPayloadError) Error() string {
	return "Invalid payload: " + e.err.Error()
}

func (e *invalidPayloadError) Unwrap() error {
	return e.err
}

func invalidPayload(format string, args ...interface{}) error {
	return &invalidPayloadError{err: fmt.Errorf(format, args...)}
}

// decodePayload reads the request body according to its content type.
// JSON bodies are parsed directly, form bodies through their payload field;
// any other content type carries no payload.
func decodePayload(r *http.Request) (map[string]interface{}, error) {
	contentType := strings.ToLower(r.Header.Get("Content-Type"))
	switch {
	case isJSONContentType(contentType):
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, readError(err)
		}
		return parseObject(body)
	case render.GetContentType(contentType) == render.ContentTypeForm:
		if err := r.ParseForm(); err != nil {
			return nil, readError(err)
		}
		raw := r.PostForm.Get("payload")
		if strings.TrimSpace(raw) == "" {
			return nil, errNoPayload
		}
		return parseObject([]byte(raw))
	default:
		return nil, errNoPayload
	}
}

func isJSONContentType(contentType string) bool {
	if render.GetContentType(contentType) == render.ContentTypeJSON {
		return true
	}
	mediaType := strings.TrimSpace(strings.Split(contentType, ";")[0])
	return strings.HasSuffix(mediaType, "+json")
}

func readError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return invalidPayload("body exceeds %d bytes", tooLarge.Limit)
	}
	return invalidPayload("%v", err)
}

// parseObject decodes a single JSON object, keeping numbers as json.Number.
func parseObject(data []byte) (map[string]interface{}, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errNoPayload
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var document interface{}
	if err := decoder.Decode(&document); err != nil {
		return nil, invalidPayload("%v", err)
	}
	if _, err := decoder.Token(); err != io.EOF {
		return nil, invalidPayload("unexpected data after JSON document")
	}

	switch typed := document.(type) {
	case nil:
		return nil, errNoPayload
	case map[string]interface{}:
		if len(typed) == 0 {
			return nil, errNoPayload
		}
		return typed, nil
	default:
		return nil, invalidPayload("expected a JSON object, got %s", jsonKind(typed))
	}
}

func jsonKind(value interface{}) string {
	switch value.(type) {
	case []interface{}:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", value)
	}
}
