// Package docformat classifies upstream document responses and inspects PDFs.
package docformat

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	"github.com/ericfisherdev/recibos/internal/domain/model"
)

var pdfMagic = []byte("%PDF")

// base64Keys are the JSON fields that may carry a base64 PDF, in lookup order.
// The portal answers with bRESP; older portal versions and the bridge use the others.
var base64Keys = []string{"bRESP", "bresp", "content", "pdf_base64"}

// Decode turns a document response body into PDF bytes. A body is accepted
// when it is served as application/pdf, when it starts with %PDF regardless
// of content type, or when it is JSON holding a base64 PDF under one of the
// known keys. Anything else yields model.ErrUnknownResponseFormat.
func Decode(contentType string, body []byte) ([]byte, error) {
	mediaType := parseMediaType(contentType)

	if bytes.HasPrefix(body, pdfMagic) {
		return body, nil
	}
	if mediaType == "application/pdf" {
		if len(body) == 0 {
			return nil, fmt.Errorf("empty application/pdf body: %w", model.ErrUnknownResponseFormat)
		}
		return body, nil
	}

	trimmed := bytes.TrimSpace(body)
	if mediaType != "application/json" && !bytes.HasPrefix(trimmed, []byte("{")) {
		return nil, fmt.Errorf("content type %q: %w", contentType, model.ErrUnknownResponseFormat)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("decoding JSON envelope: %v: %w", err, model.ErrUnknownResponseFormat)
	}

	for _, key := range base64Keys {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		encoded := base64Field(raw)
		if encoded == "" {
			continue
		}
		content, err := decodeBase64(encoded)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %v: %w", key, err, model.ErrUnknownResponseFormat)
		}
		return content, nil
	}

	return nil, fmt.Errorf("no base64 document in JSON response: %w", model.ErrUnknownResponseFormat)
}

// base64Field reads either a plain string or a {"content": "..."} object.
func base64Field(raw json.RawMessage) string {
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		return encoded
	}
	var wrapped struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		return wrapped.Content
	}
	return ""
}

func parseMediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mediaType
}

// decodeBase64 accepts standard base64 with or without padding and an
// optional data URI prefix.
func decodeBase64(encoded string) ([]byte, error) {
	if i := strings.Index(encoded, "base64,"); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+len("base64,"):]
	}
	encoded = strings.TrimSpace(encoded)
	content, err := base64.StdEncoding.DecodeString(encoded)
	if err == nil {
		return content, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
}
