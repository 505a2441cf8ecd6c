package taskqueue

import (
	"testing"
	"time"
)

func TestEncodeDecodeTask_RoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	orig := Task{
		ID:         "id-123",
		Type:       TaskTypeResume,
		Key:        "e42s3",
		EventID:    "timeout",
		Params:     map[string]string{"reason": "idle"},
		Input:      map[string]any{"nested": map[string]any{"n": 1}},
		EnqueuedAt: now,
		NotBefore:  now.Add(5 * time.Minute),
		Attempts:   3,
	}

	data, err := EncodeTask(orig)
	if err != nil {
		t.Fatalf("EncodeTask error: %v", err)
	}
	got, err := DecodeTask(data)
	if err != nil {
		t.Fatalf("DecodeTask error: %v", err)
	}

	if got.ID != orig.ID || got.Type != orig.Type || got.Key != orig.Key || got.EventID != orig.EventID {
		t.Fatalf("identity mismatch: got %+v want %+v", got, orig)
	}
	if got.Params["reason"] != "idle" {
		t.Fatalf("params mismatch: %v", got.Params)
	}
	nested, ok := got.Input["nested"].(map[string]any)
	if !ok || nested["n"] != 1 {
		t.Fatalf("input mismatch: %#v", got.Input)
	}
	if !got.EnqueuedAt.Equal(orig.EnqueuedAt) || !got.NotBefore.Equal(orig.NotBefore) {
		t.Fatalf("time mismatch: got %v/%v", got.EnqueuedAt, got.NotBefore)
	}
	if got.Attempts != orig.Attempts {
		t.Fatalf("Attempts mismatch: got %d want %d", got.Attempts, orig.Attempts)
	}
}

func TestDecodeTask_InvalidData_ReturnsError(t *testing.T) {
	bad := []byte{0x00, 0x01, 0x02, 0x03, 0xFF}
	if task, err := DecodeTask(bad); err == nil {
		t.Fatalf("expected error, got task: %#v", task)
	}
}

func TestTaskDue(t *testing.T) {
	now := time.Now()
	if !(Task{}).Due(now) {
		t.Fatalf("zero NotBefore should be due")
	}
	if !(Task{NotBefore: now}).Due(now) {
		t.Fatalf("NotBefore == now should be due")
	}
	if (Task{NotBefore: now.Add(time.Second)}).Due(now) {
		t.Fatalf("future NotBefore should not be due")
	}
}
