package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// ExecEngine runs an external recognizer command. The command receives the
// image path as its final argument and writes one JSON array of regions to
// stdout:
//
//	[{"box": [[x,y],[x,y],[x,y],[x,y]], "text": "...", "confidence": 0.97}, ...]
//
// Corner order is top-left, top-right, bottom-right, bottom-left.
type ExecEngine struct {
	Command string
	Args    []string
}

func (e *ExecEngine) ReadText(ctx context.Context, imagePath string) ([]Region, error) {
	args := append(append([]string{}, e.Args...), imagePath)
	cmd := exec.CommandContext(ctx, e.Command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", e.Command, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", e.Command, err)
	}

	var raw []struct {
		Box        [4][2]float64 `json:"box"`
		Text       string        `json:"text"`
		Confidence float64       `json:"confidence"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return nil, fmt.Errorf("%s: parse output: %w", e.Command, err)
	}
	regions := make([]Region, 0, len(raw))
	for _, r := range raw {
		regions = append(regions, Region{Box: r.Box, Text: r.Text, Confidence: r.Confidence})
	}
	return regions, nil
}
