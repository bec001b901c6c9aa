package ocr

import (
	"context"
	"runtime"
	"strings"
	"testing"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a posix shell")
	}
}

func TestExecEngineParsesOutput(t *testing.T) {
	skipWithoutShell(t)
	e := &ExecEngine{
		Command: "sh",
		Args: []string{"-c",
			`printf '[{"box":[[0,0],[100,0],[100,48],[0,48]],"text":"Crystal Boutique","confidence":0.97}]'`,
			"sh"},
	}
	regions, err := e.ReadText(context.Background(), "shot.jpg")
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	if len(regions) != 1 {
		t.Fatalf("got %d regions, want 1", len(regions))
	}
	r := regions[0]
	if r.Text != "Crystal Boutique" || r.Confidence != 0.97 {
		t.Errorf("region = %+v", r)
	}
	if h := boxHeight(r.Box); h != 48 {
		t.Errorf("box height = %v, want 48", h)
	}
}

func TestExecEnginePassesImagePathLast(t *testing.T) {
	skipWithoutShell(t)
	// $1 is the image path; echo it back as the recognized text.
	e := &ExecEngine{
		Command: "sh",
		Args:    []string{"-c", `printf '[{"box":[[0,0],[1,0],[1,1],[0,1]],"text":"%s","confidence":1}]' "$1"`, "sh"},
	}
	regions, err := e.ReadText(context.Background(), "group_images/image_7.jpg")
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	if len(regions) != 1 || regions[0].Text != "group_images/image_7.jpg" {
		t.Errorf("regions = %+v", regions)
	}
}

func TestExecEngineSurfacesStderr(t *testing.T) {
	skipWithoutShell(t)
	e := &ExecEngine{
		Command: "sh",
		Args:    []string{"-c", `echo "model load failed" >&2; exit 3`, "sh"},
	}
	_, err := e.ReadText(context.Background(), "shot.jpg")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "model load failed") {
		t.Errorf("error %q does not carry stderr", err)
	}
}

func TestExecEngineRejectsMalformedOutput(t *testing.T) {
	skipWithoutShell(t)
	e := &ExecEngine{
		Command: "sh",
		Args:    []string{"-c", `printf 'not json'`, "sh"},
	}
	if _, err := e.ReadText(context.Background(), "shot.jpg"); err == nil {
		t.Fatal("expected parse error")
	}
}
