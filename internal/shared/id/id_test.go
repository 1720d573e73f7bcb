package id

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/shmbridge/internal/shm"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
}

func TestGenerateWithPrefix(t *testing.T) {
	gen := NewGenerator()

	for _, prefix := range []string{"req", "stream"} {
		id := gen.GenerateWithPrefix(prefix)

		if !strings.HasPrefix(id, prefix+"_") {
			t.Errorf("ID should start with '%s_', got: %s", prefix, id)
		}

		parts := strings.Split(id, "_")
		if len(parts) != 2 {
			t.Fatalf("Prefixed ID should have format 'prefix_ulid', got: %s", id)
		}
		if !IsValid(parts[1]) {
			t.Errorf("ULID part should be valid: %s", parts[1])
		}
	}
}

func TestTypedIDGeneration(t *testing.T) {
	if reqID := NewRequestID(); !strings.HasPrefix(reqID.String(), "req_") {
		t.Errorf("RequestID should start with 'req_', got: %s", reqID)
	}
	if streamID := NewStreamID(); !strings.HasPrefix(streamID.String(), "stream_") {
		t.Errorf("StreamID should start with 'stream_', got: %s", streamID)
	}
}

func TestNewSegmentName(t *testing.T) {
	a := NewSegmentName("TestChannel/Round Trip")
	b := NewSegmentName("TestChannel/Round Trip")

	if a == b {
		t.Error("Segment names should be unique")
	}
	if a != strings.ToLower(a) {
		t.Errorf("Segment name should be lowercase, got: %s", a)
	}
	if !strings.HasPrefix(a, "testchannel_round_trip_") {
		t.Errorf("Unexpected segment name: %s", a)
	}
	if err := shm.ValidateName(a); err != nil {
		t.Errorf("Segment name should be valid: %v", err)
	}
}

func TestIsValid(t *testing.T) {
	gen := NewGenerator()

	if !IsValid(gen.GenerateString()) {
		t.Error("Generated ULID should be valid")
	}

	for _, id := range []string{"", "invalid", "1234567890", "zzzzzzzzzzzzzzzzzzzzzzzzzzz"} {
		if IsValid(id) {
			t.Errorf("ID should be invalid: %s", id)
		}
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now()
	reqID := NewRequestID()
	after := time.Now()

	ts, err := Timestamp(reqID.String())
	if err != nil {
		t.Fatalf("Failed to extract timestamp: %v", err)
	}

	// ULID timestamps have millisecond precision
	if ts.UnixMilli() < before.UnixMilli() || ts.UnixMilli() > after.UnixMilli() {
		t.Errorf("Timestamp %v outside [%v, %v]", ts, before, after)
	}

	if _, err := Timestamp("req_nope"); err == nil {
		t.Error("Expected error for malformed ID")
	}
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()

	const goroutines = 50
	const idsPerGoroutine = 100

	var wg sync.WaitGroup
	idChan := make(chan string, goroutines*idsPerGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < idsPerGoroutine; j++ {
				idChan <- gen.GenerateString()
			}
		}()
	}

	wg.Wait()
	close(idChan)

	seen := make(map[string]bool)
	for id := range idChan {
		if seen[id] {
			t.Errorf("Duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}
