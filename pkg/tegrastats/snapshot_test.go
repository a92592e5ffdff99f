// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tegrastats

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestComplete(t *testing.T) {
	parsed := Snapshot{Timestamp: "t0"}
	parsed.CPU.CoreCount = 1
	parsed.CPU.Cores[0] = Core{ID: 0, UsagePercent: 10}

	t.Run("all sections ok", func(t *testing.T) {
		snap := Complete(parsed, SectionResults{SectionCPU: nil, SectionTimestamp: nil}, testTime)
		if !snap.Valid {
			t.Error("Expected valid snapshot")
		}
		if !snap.CapturedAt.Equal(testTime) {
			t.Errorf("CapturedAt = %v", snap.CapturedAt)
		}
	})

	t.Run("one section failed keeps data", func(t *testing.T) {
		results := SectionResults{SectionCPU: nil, SectionMemory: errors.New("bad")}
		snap := Complete(parsed, results, testTime)
		if snap.Valid {
			t.Error("Expected invalid snapshot")
		}
		if snap.CPU.Cores[0].UsagePercent != 10 || snap.Timestamp != "t0" {
			t.Errorf("Partial data must be kept: %+v", snap)
		}
	})

	t.Run("nothing attempted", func(t *testing.T) {
		if snap := Complete(Snapshot{}, SectionResults{}, testTime); !snap.Valid {
			t.Error("Empty results should be valid")
		}
	})
}

func TestSectionResults_FailedOrder(t *testing.T) {
	results := SectionResults{
		SectionGPU:    errors.New("x"),
		SectionCPU:    errors.New("y"),
		SectionPower:  nil,
		SectionMemory: errors.New("z"),
	}
	got := strings.Join(results.Failed(), ",")
	if got != "cpu,memory,gpu" {
		t.Errorf("Failed() = %s, want cpu,memory,gpu", got)
	}
	if results.OK() {
		t.Error("OK() should be false")
	}
}

func TestSnapshot_Age(t *testing.T) {
	s := Snapshot{CapturedAt: testTime}
	if age := s.Age(testTime.Add(31 * time.Second)); age != 31*time.Second {
		t.Errorf("Age = %v, want 31s", age)
	}
	var zero Snapshot
	if zero.Age(testTime) != 0 {
		t.Error("Zero snapshot age should be 0")
	}
}

func TestFormatSnapshot(t *testing.T) {
	p, _ := newTestParser()
	snap, err := p.Parse([]byte(fullDocument), testTime)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	out := FormatSnapshot(&snap)

	for _, want := range []string{
		"Timestamp: 2025-01-01T12:00:00 [VALID]",
		"CPU (3 cores):",
		"Core 2: 100% @ 2201 MHz",
		"RAM:  3120/30536 MB",
		"cached 3 MB",
		"CPU: 45.5°C",
		"SYS 5V:  4100 mW (avg 4050 mW)",
		"GPU: GR3D 37%",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Formatted output missing %q:\n%s", want, out)
		}
	}

	snap.Valid = false
	if !strings.Contains(FormatSnapshot(&snap), "[INCOMPLETE]") {
		t.Error("Invalid snapshot should be marked INCOMPLETE")
	}
}
