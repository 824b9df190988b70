package message

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDirection indicates a direction literal other than request or response.
var ErrInvalidDirection = errors.New("invalid direction")

// Direction tells the engine which half of an exchange a message belongs to.
type Direction int

const (
	// Request is the client-to-upstream direction.
	Request Direction = iota
	// Response is the upstream-to-client direction.
	Response
)

// String returns the lowercase name of the direction.
func (d Direction) String() string {
	switch d {
	case Request:
		return "request"
	case Response:
		return "response"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection parses "request" or "response", ignoring case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "request":
		return Request, nil
	case "response":
		return Response, nil
	default:
		return 0, fmt.Errorf("%w: %q (expected request or response)", ErrInvalidDirection, s)
	}
}
