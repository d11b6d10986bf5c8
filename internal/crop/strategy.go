package crop

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"
)

// Kind selects a crop strategy. The numeric values match the crop_type form field.
type Kind int

const (
	KindObjectDetection Kind = 0
	KindForeground      Kind = 1
)

// DefaultKind is used when the caller does not pick a strategy.
const DefaultKind = KindForeground

func (k Kind) String() string {
	switch k {
	case KindObjectDetection:
		return "object"
	case KindForeground:
		return "foreground"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// ParseKind accepts the numeric selector ("0", "1") or a strategy name.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultKind, nil
	case "0", "object", "yolo", "detection":
		return KindObjectDetection, nil
	case "1", "foreground", "cv":
		return KindForeground, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Strategy proposes candidate regions for an image. Implementations return
// their own named error when no candidate exists.
type Strategy interface {
	Kind() Kind
	Candidates(ctx context.Context, img image.Image) ([]Candidate, error)
}
