// Package ocr extracts store names from store-follow screenshots. The
// pipeline crops the screenshot header, runs text recognition over it,
// validates the result against the store-follow page vocabulary, and picks
// the tallest non-UI text block as the store name.
package ocr

import (
	"context"
	"errors"
	"fmt"
)

// Region is one recognized text block: a quadrilateral bounding box as four
// corner points (clockwise from top-left, each point being x,y), the text,
// and the recognizer's confidence score.
type Region struct {
	Box        [4][2]float64
	Text       string
	Confidence float64
}

// Engine runs text recognition over an image file.
type Engine interface {
	ReadText(ctx context.Context, imagePath string) ([]Region, error)
}

// InvalidImageError means the image content does not qualify: no text, none
// of the validation vocabulary, or no surviving candidates. Permanent for
// this image; discard, don't retry.
type InvalidImageError struct {
	Reason string
}

func (e *InvalidImageError) Error() string {
	return "invalid screenshot: " + e.Reason
}

// RecognitionError wraps a failure of the recognition engine or of image
// preprocessing. Transient; the same image may succeed on a later attempt.
type RecognitionError struct {
	Err error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition failed: %v", e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// IsInvalidImage reports whether err marks a permanently unusable image.
func IsInvalidImage(err error) bool {
	var ie *InvalidImageError
	return errors.As(err, &ie)
}

// IsRecognitionError reports whether err is a transient recognition failure.
func IsRecognitionError(err error) bool {
	var re *RecognitionError
	return errors.As(err, &re)
}
