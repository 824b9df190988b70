package message

import (
	"bytes"
	"mime"
	"strings"
)

// Well-known media types.
const (
	MediaTypeJSON        = "application/json"
	MediaTypeProblemJSON = "application/problem+json"
)

// MediaType is a content type such as "application/json; charset=utf-8".
type MediaType string

// Essence returns the lowercase type/subtype without parameters.
func (m MediaType) Essence() string {
	if m == "" {
		return ""
	}
	essence, _, err := mime.ParseMediaType(string(m))
	if err != nil {
		if i := strings.IndexByte(string(m), ';'); i >= 0 {
			return strings.ToLower(strings.TrimSpace(string(m[:i])))
		}
		return strings.ToLower(strings.TrimSpace(string(m)))
	}
	return essence
}

// Matches reports whether two media types share the same essence.
func (m MediaType) Matches(other MediaType) bool {
	return m.Essence() == other.Essence()
}

// IsJSON reports whether the media type is JSON or a +json structured suffix.
func (m MediaType) IsJSON() bool {
	e := m.Essence()
	return e == MediaTypeJSON || strings.HasSuffix(e, "+json")
}

// Body is a message payload. The zero value is the empty body; a Body is
// never nil.
type Body struct {
	data      []byte
	mediaType MediaType
}

// EmptyBody returns the distinguished empty body.
func EmptyBody() Body {
	return Body{}
}

// NewBody copies data into a new body with the given content type.
func NewBody(data []byte, contentType string) Body {
	if len(data) == 0 {
		return Body{mediaType: MediaType(contentType)}
	}
	return Body{data: bytes.Clone(data), mediaType: MediaType(contentType)}
}

// JSONBody copies data into a new application/json body.
func JSONBody(data []byte) Body {
	return NewBody(data, MediaTypeJSON)
}

// IsEmpty reports whether the body has no bytes.
func (b Body) IsEmpty() bool {
	return len(b.data) == 0
}

// Len returns the body size in bytes.
func (b Body) Len() int {
	return len(b.data)
}

// Bytes returns a copy of the body bytes.
func (b Body) Bytes() []byte {
	return bytes.Clone(b.data)
}

// String returns the body as a string.
func (b Body) String() string {
	return string(b.data)
}

// MediaType returns the body media type, possibly empty.
func (b Body) MediaType() MediaType {
	return b.mediaType
}

// Equal reports whether two bodies carry the same bytes and media type.
func (b Body) Equal(other Body) bool {
	return b.mediaType == other.mediaType && bytes.Equal(b.data, other.data)
}
