package ocr

import (
	"context"
	"image"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/disintegration/imaging"

	"github.com/Hyllesen/telegram-user-bot/telemetry"
)

// validationVocab confirms the screenshot is a store-follow page and not
// arbitrary content; at least one must appear somewhere in the recognized
// text (case-insensitive).
var validationVocab = []string{"Following", "Sold", "Items"}

// uiVocab is chrome text that must never win candidate selection.
var uiVocab = map[string]struct{}{
	"Following": {},
	"Sold":      {},
	"Items":     {},
	"Follow":    {},
	"Message":   {},
	"Share":     {},
	"More":      {},
}

// Store identity renders in the screenshot header, so only the top slice of
// the image is worth recognizing.
const cropTopPercent = 25

var whitespaceRun = regexp.MustCompile(`\s+`)

// Extractor runs the crop-recognize-select pipeline.
type Extractor struct {
	Engine Engine
	// TempDir receives the transient header crops; empty means the OS
	// default temp directory.
	TempDir string
}

// Extract returns the store name recognized in the screenshot at imagePath.
// It fails with InvalidImageError when the image does not qualify
// (permanent) and with RecognitionError when cropping or the engine fails
// (transient).
func (e *Extractor) Extract(ctx context.Context, imagePath string) (string, error) {
	cropped, err := e.cropHeader(imagePath)
	if err != nil {
		return "", &RecognitionError{Err: err}
	}
	defer os.Remove(cropped)

	start := time.Now()
	regions, err := e.Engine.ReadText(ctx, cropped)
	if telemetry.RecognitionDuration != nil {
		telemetry.RecognitionDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return "", &RecognitionError{Err: err}
	}
	if len(regions) == 0 {
		return "", &InvalidImageError{Reason: "no text detected"}
	}
	if err := validate(regions); err != nil {
		return "", err
	}
	return selectStoreName(regions)
}

// cropHeader writes the top slice of the image to a temp file and returns
// its path. The caller owns deletion.
func (e *Extractor) cropHeader(imagePath string) (string, error) {
	img, err := imaging.Open(imagePath)
	if err != nil {
		return "", err
	}
	bounds := img.Bounds()
	cropHeight := bounds.Dy() * cropTopPercent / 100
	header := imaging.Crop(img, image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Min.Y+cropHeight))

	f, err := os.CreateTemp(e.TempDir, "header-*.jpg")
	if err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := imaging.Save(header, f.Name(), imaging.JPEGQuality(90)); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func validate(regions []Region) error {
	var all strings.Builder
	for _, r := range regions {
		all.WriteString(r.Text)
		all.WriteString(" ")
	}
	joined := strings.ToLower(all.String())
	for _, kw := range validationVocab {
		if strings.Contains(joined, strings.ToLower(kw)) {
			return nil
		}
	}
	return &InvalidImageError{Reason: "missing store-follow vocabulary " + strings.Join(validationVocab, "/")}
}

type candidate struct {
	text   string
	height float64
}

// selectStoreName applies the font-size heuristic: the store name is the
// tallest recognized block that is neither trivially short nor UI chrome.
// The sort is stable, so equal heights resolve to first-seen.
func selectStoreName(regions []Region) (string, error) {
	var candidates []candidate
	for _, r := range regions {
		text := strings.TrimSpace(r.Text)
		if utf8.RuneCountInString(text) < 2 {
			continue
		}
		if _, ok := uiVocab[text]; ok {
			continue
		}
		candidates = append(candidates, candidate{text: text, height: boxHeight(r.Box)})
	}
	if len(candidates) == 0 {
		return "", &InvalidImageError{Reason: "no store name candidates after filtering"}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].height > candidates[j].height
	})
	return normalize(candidates[0].text), nil
}

// boxHeight averages the two vertical spans of the quadrilateral, corners
// ordered top-left, top-right, bottom-right, bottom-left.
func boxHeight(box [4][2]float64) float64 {
	a := box[2][1] - box[0][1]
	b := box[3][1] - box[1][1]
	return (a + b) / 2
}

func normalize(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
