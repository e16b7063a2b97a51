// Package storage keeps interview media (screenshots, audio answers, recordings)
// and returns URLs clients can fetch them from.
package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/google/uuid"
)

// Storage stores an object under folder/name and returns its URL.
type Storage interface {
	Store(ctx context.Context, folder, name, contentType string, data []byte) (string, error)
}

var ErrBadDataURL = errors.New("malformed base64 payload")

// DecodeDataURL accepts either a data URL ("data:image/png;base64,...") or bare
// base64 and returns the bytes and the declared content type.
func DecodeDataURL(s string, defaultType string) ([]byte, string, error) {
	contentType := defaultType
	payload := strings.TrimSpace(s)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, "", ErrBadDataURL
		}
		meta := payload[len("data:"):comma]
		payload = payload[comma+1:]
		if !strings.HasSuffix(meta, ";base64") {
			return nil, "", ErrBadDataURL
		}
		if t := strings.TrimSuffix(meta, ";base64"); t != "" {
			contentType = t
		}
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrBadDataURL, err)
	}
	if len(data) == 0 {
		return nil, "", ErrBadDataURL
	}
	return data, contentType, nil
}

// ObjectName builds a unique object name for an interview's media.
func ObjectName(interviewID, contentType string) string {
	return fmt.Sprintf("%s-%s%s", interviewID, uuid.NewString(), extensionFor(contentType))
}

func extensionFor(contentType string) string {
	base, _, _ := mime.ParseMediaType(contentType)
	switch base {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "audio/webm", "video/webm":
		return ".webm"
	case "audio/mp4", "video/mp4":
		return ".mp4"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	default:
		return ".bin"
	}
}
