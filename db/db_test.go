package db

import (
	"context"
	"testing"
)

func TestNilHistoryIsNoOp(t *testing.T) {
	var h *History
	if err := h.RecordForward(context.Background(), "Crystal", "Crystal Boutique", "img.jpg", 1); err != nil {
		t.Errorf("nil RecordForward: %v", err)
	}
	if err := h.Heartbeat(context.Background(), "job_poll_last"); err != nil {
		t.Errorf("nil Heartbeat: %v", err)
	}
}

func TestEmptyHistoryIsNoOp(t *testing.T) {
	h := &History{}
	if err := h.RecordForward(context.Background(), "Crystal", "Crystal Boutique", "img.jpg", 1); err != nil {
		t.Errorf("RecordForward without DB: %v", err)
	}
	if err := h.Heartbeat(context.Background(), "job_poll_last"); err != nil {
		t.Errorf("Heartbeat without DB: %v", err)
	}
}
