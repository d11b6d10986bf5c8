package crop

import "errors"

var (
	// ErrNoForegroundFound is returned when thresholding leaves no foreground pixels.
	ErrNoForegroundFound = errors.New("no foreground region found")

	// ErrNoDetectionFound is returned when the detector proposes no usable box.
	ErrNoDetectionFound = errors.New("no object detected")

	// ErrUnknownStrategy is returned for an unrecognized crop strategy selector.
	ErrUnknownStrategy = errors.New("unknown crop strategy")
)
