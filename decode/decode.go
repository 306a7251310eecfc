// Package decode turns a raw mail message into its plain-text body.
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
)

// ErrEmptyBody is returned when a message has no readable text/plain part.
var ErrEmptyBody = errors.New("message has no text/plain body")

var errFound = errors.New("found")

// Resolve returns the decoded text of the first text/plain part of raw that
// is not an attachment. Transfer encodings and charsets are decoded and line
// endings are normalized to "\n".
func Resolve(raw []byte) (string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", ErrEmptyBody
	}

	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return "", fmt.Errorf("read message: %w", err)
	}

	var body string
	if entity.MultipartReader() == nil {
		body, err = readSingle(entity)
		if err != nil {
			return "", err
		}
	} else {
		walkErr := entity.Walk(func(_ []int, part *message.Entity, err error) error {
			if err != nil && !message.IsUnknownCharset(err) {
				return err
			}
			if part == nil {
				return nil
			}
			if part.MultipartReader() != nil || !isPlainText(part) || isAttachment(part) {
				return nil
			}
			text, err := io.ReadAll(part.Body)
			if err != nil {
				return fmt.Errorf("read text part: %w", err)
			}
			body = string(text)
			return errFound
		})
		if walkErr != nil && !errors.Is(walkErr, errFound) {
			return "", fmt.Errorf("walk message: %w", walkErr)
		}
	}

	body = strings.ReplaceAll(body, "\r\n", "\n")
	if strings.TrimSpace(body) == "" {
		return "", ErrEmptyBody
	}
	return body, nil
}

// readSingle decodes a non-multipart payload. Non-text payloads carry no body.
func readSingle(entity *message.Entity) (string, error) {
	mediaType := mediaType(entity)
	if !strings.HasPrefix(mediaType, "text/") {
		return "", ErrEmptyBody
	}
	text, err := io.ReadAll(entity.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(text), nil
}

func mediaType(entity *message.Entity) string {
	if entity.Header.Get("Content-Type") == "" {
		return "text/plain"
	}
	mediaType, _, err := entity.Header.ContentType()
	if err != nil {
		return ""
	}
	return strings.ToLower(mediaType)
}

func isPlainText(entity *message.Entity) bool {
	return mediaType(entity) == "text/plain"
}

func isAttachment(entity *message.Entity) bool {
	if entity.Header.Get("Content-Disposition") == "" {
		return false
	}
	disposition, _, err := entity.Header.ContentDisposition()
	if err != nil {
		return false
	}
	return strings.EqualFold(disposition, "attachment")
}
