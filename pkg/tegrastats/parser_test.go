// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tegrastats

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// ============================================================
// Test Helpers
// ============================================================

const fullDocument = `{
  "timestamp": "2025-01-01T12:00:00",
  "cpu": {"cores": [
    {"id": 0, "usage": 12, "freq": 1984},
    {"id": 1, "usage": 7, "freq": 1984},
    {"id": 2, "usage": 100, "freq": 2201}
  ]},
  "memory": {
    "ram": {"used": 3120, "total": 30536, "unit": "MB"},
    "swap": {"used": 12, "total": 15268, "cached": 3, "unit": "MB"}
  },
  "temperature": {"cpu": 45.5, "soc0": 44.1, "soc1": 43.9, "soc2": 44.0, "tj": 46.3},
  "power": {
    "gpu_soc": {"current": 1200, "average": 1180, "unit": "mW"},
    "cpu_cv": {"current": 800, "average": 790, "unit": "mW"},
    "sys_5v": {"current": 4100, "average": 4050, "unit": "mW"},
    "ram": {"current": 500, "average": 480, "unit": "mW"},
    "swap": {"current": 0, "average": 0, "unit": "mW"}
  },
  "gpu": {"gr3d_freq": 37}
}`

var testTime = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

type recordingThermal struct {
	readings []float64
	err      error
}

func (r *recordingThermal) ReportAGXTemperature(celsius float64) error {
	r.readings = append(r.readings, celsius)
	return r.err
}

func newTestParser() (*Parser, *recordingThermal) {
	thermal := &recordingThermal{}
	return NewParser(thermal, nil), thermal
}

// ============================================================
// Full Document Tests
// ============================================================

func TestParse_FullDocument(t *testing.T) {
	p, thermal := newTestParser()
	snap, err := p.Parse([]byte(fullDocument), testTime)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if !snap.Valid {
		t.Error("Expected snapshot to be valid")
	}
	if !snap.CapturedAt.Equal(testTime) {
		t.Errorf("CapturedAt = %v, want %v", snap.CapturedAt, testTime)
	}
	if snap.Timestamp != "2025-01-01T12:00:00" {
		t.Errorf("Timestamp = %q", snap.Timestamp)
	}

	if snap.CPU.CoreCount != 3 {
		t.Fatalf("CoreCount = %d, want 3", snap.CPU.CoreCount)
	}
	want := Core{ID: 2, UsagePercent: 100, FreqMHz: 2201}
	if snap.CPU.Cores[2] != want {
		t.Errorf("Core 2 = %+v, want %+v", snap.CPU.Cores[2], want)
	}

	if snap.Memory.RAM.UsedMB != 3120 || snap.Memory.RAM.TotalMB != 30536 || snap.Memory.RAM.Unit != "MB" {
		t.Errorf("RAM = %+v", snap.Memory.RAM)
	}
	if snap.Memory.Swap.CachedMB != 3 {
		t.Errorf("Swap cached = %d, want 3", snap.Memory.Swap.CachedMB)
	}
	if snap.Memory.RAM.CachedMB != 0 {
		t.Errorf("RAM cached should stay 0, got %d", snap.Memory.RAM.CachedMB)
	}

	if snap.Temperature.CPU != 45.5 || snap.Temperature.TJ != 46.3 {
		t.Errorf("Temperature = %+v", snap.Temperature)
	}
	if snap.Power.Sys5V.CurrentMW != 4100 || snap.Power.Sys5V.AverageMW != 4050 {
		t.Errorf("Sys5V = %+v", snap.Power.Sys5V)
	}
	if snap.Power.RAM.AverageMW != 480 {
		t.Errorf("RAM rail average = %d, want 480", snap.Power.RAM.AverageMW)
	}
	if snap.GPU.GR3DFreqPercent != 37 {
		t.Errorf("GR3D = %d, want 37", snap.GPU.GR3DFreqPercent)
	}

	if len(thermal.readings) != 1 || thermal.readings[0] != 45.5 {
		t.Errorf("Thermal readings = %v, want [45.5]", thermal.readings)
	}
}

func TestParse_EmptyObject(t *testing.T) {
	p, thermal := newTestParser()
	snap, err := p.Parse([]byte(`{}`), testTime)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if !snap.Valid {
		t.Error("Document with no sections should still be valid")
	}
	if snap.CPU.CoreCount != 0 {
		t.Errorf("CoreCount = %d, want 0", snap.CPU.CoreCount)
	}
	if len(thermal.readings) != 0 {
		t.Errorf("No temperature should be forwarded, got %v", thermal.readings)
	}
}

func TestParse_InvalidJSON(t *testing.T) {
	p, _ := newTestParser()
	tests := []string{
		``,
		`{`,
		`{"cpu":`,
		`not json`,
		`[1,2,3]`,
		`42`,
	}

	for _, doc := range tests {
		t.Run(fmt.Sprintf("%q", doc), func(t *testing.T) {
			snap, err := p.Parse([]byte(doc), testTime)
			if !errors.Is(err, ErrInvalidJSON) {
				t.Errorf("Expected ErrInvalidJSON, got %v", err)
			}
			if snap.Valid || !snap.CapturedAt.IsZero() {
				t.Errorf("Expected zero snapshot, got %+v", snap)
			}
		})
	}
}

// ============================================================
// Partial Parse Tests
// ============================================================

func TestParse_PartialMemorySection(t *testing.T) {
	p, _ := newTestParser()
	doc := `{
	  "cpu": {"cores": [{"id": 0, "usage": 55, "freq": 1500}, {"id": 1, "usage": 20, "freq": 1400}]},
	  "memory": {"ram": {"used": "lots", "total": 30536, "unit": "MB"}}
	}`

	snap, err := p.Parse([]byte(doc), testTime)

	var sectionErr *SectionError
	if !errors.As(err, &sectionErr) {
		t.Fatalf("Expected *SectionError, got %v", err)
	}
	failed := sectionErr.Results.Failed()
	if len(failed) != 1 || failed[0] != SectionMemory {
		t.Errorf("Failed sections = %v, want [memory]", failed)
	}
	if sectionErr.Results[SectionCPU] != nil {
		t.Errorf("cpu section should have succeeded: %v", sectionErr.Results[SectionCPU])
	}

	if snap.Valid {
		t.Error("Snapshot with a failed section must not be valid")
	}
	if snap.CPU.CoreCount != 2 || snap.CPU.Cores[0].UsagePercent != 55 || snap.CPU.Cores[1].FreqMHz != 1400 {
		t.Errorf("CPU section not populated: %+v", snap.CPU)
	}
	if snap.Memory.RAM.UsedMB != 0 {
		t.Errorf("ram.used should stay at its prior value 0, got %d", snap.Memory.RAM.UsedMB)
	}
	if snap.Memory.RAM.TotalMB != 30536 {
		t.Errorf("ram.total should still be parsed, got %d", snap.Memory.RAM.TotalMB)
	}
	if !strings.Contains(err.Error(), "memory") {
		t.Errorf("Error should name the memory section: %v", err)
	}
}

func TestParse_SectionWrongType(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		section string
	}{
		{"cpu number", `{"cpu": 5}`, SectionCPU},
		{"cores object", `{"cpu": {"cores": {"id": 1}}}`, SectionCPU},
		{"core not object", `{"cpu": {"cores": [1, 2]}}`, SectionCPU},
		{"memory string", `{"memory": "full"}`, SectionMemory},
		{"temperature array", `{"temperature": [1]}`, SectionTemperature},
		{"power rail string", `{"power": {"gpu_soc": "high"}}`, SectionPower},
		{"gpu freq string", `{"gpu": {"gr3d_freq": "12%"}}`, SectionGPU},
		{"timestamp number", `{"timestamp": 12345}`, SectionTimestamp},
		{"core id out of range", `{"cpu": {"cores": [{"id": 300}]}}`, SectionCPU},
		{"negative memory", `{"memory": {"ram": {"used": -1}}}`, SectionMemory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestParser()
			snap, err := p.Parse([]byte(tt.doc), testTime)
			var sectionErr *SectionError
			if !errors.As(err, &sectionErr) {
				t.Fatalf("Expected *SectionError, got %v", err)
			}
			if sectionErr.Results[tt.section] == nil {
				t.Errorf("Expected section %s to fail, results=%v", tt.section, sectionErr.Results)
			}
			if snap.Valid {
				t.Error("Snapshot should be invalid")
			}
		})
	}
}

func TestParse_NullFieldsAreAbsent(t *testing.T) {
	p, _ := newTestParser()
	doc := `{"cpu": null, "memory": {"ram": {"used": null, "total": 10}}, "gpu": {"gr3d_freq": null}}`
	snap, err := p.Parse([]byte(doc), testTime)
	if err != nil {
		t.Fatalf("Null fields should be treated as absent: %v", err)
	}
	if snap.Memory.RAM.TotalMB != 10 || snap.Memory.RAM.UsedMB != 0 {
		t.Errorf("RAM = %+v", snap.Memory.RAM)
	}
}

// ============================================================
// CPU Tests
// ============================================================

func TestParse_CoresTruncated(t *testing.T) {
	p, _ := newTestParser()
	var cores []string
	for i := 0; i < MaxCores+4; i++ {
		cores = append(cores, fmt.Sprintf(`{"id": %d, "usage": %d, "freq": 1000}`, i, i))
	}
	doc := `{"cpu": {"cores": [` + strings.Join(cores, ",") + `]}}`

	snap, err := p.Parse([]byte(doc), testTime)
	if err != nil {
		t.Fatalf("Truncation must not be an error: %v", err)
	}
	if snap.CPU.CoreCount != MaxCores {
		t.Errorf("CoreCount = %d, want %d", snap.CPU.CoreCount, MaxCores)
	}
	last := snap.CPU.Cores[MaxCores-1]
	if last.ID != MaxCores-1 {
		t.Errorf("Last kept core ID = %d, want %d", last.ID, MaxCores-1)
	}
}

func TestParse_CoresCustomLimit(t *testing.T) {
	p, _ := newTestParser()
	p.MaxCores = 2
	doc := `{"cpu": {"cores": [{"id": 0}, {"id": 1}, {"id": 2}]}}`
	snap, err := p.Parse([]byte(doc), testTime)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if snap.CPU.CoreCount != 2 {
		t.Errorf("CoreCount = %d, want 2", snap.CPU.CoreCount)
	}
	if len(snap.CPU.ActiveCores()) != 2 {
		t.Errorf("ActiveCores length = %d, want 2", len(snap.CPU.ActiveCores()))
	}
}

func TestParse_CoreFieldsIndependent(t *testing.T) {
	p, _ := newTestParser()
	doc := `{"cpu": {"cores": [{"id": 3}, {"usage": 40}, {"freq": 900}]}}`
	snap, err := p.Parse([]byte(doc), testTime)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	want := []Core{
		{ID: 3},
		{UsagePercent: 40},
		{FreqMHz: 900},
	}
	for i, w := range want {
		if snap.CPU.Cores[i] != w {
			t.Errorf("Core %d = %+v, want %+v", i, snap.CPU.Cores[i], w)
		}
	}
}

func TestParse_CoreValuesClamped(t *testing.T) {
	p, _ := newTestParser()
	doc := `{"cpu": {"cores": [{"id": 0, "usage": 150, "freq": 70000}, {"id": 1, "usage": -5}]}}`
	snap, err := p.Parse([]byte(doc), testTime)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if snap.CPU.Cores[0].UsagePercent != 100 {
		t.Errorf("Usage should clamp to 100, got %d", snap.CPU.Cores[0].UsagePercent)
	}
	if snap.CPU.Cores[0].FreqMHz != 65535 {
		t.Errorf("Freq should clamp to 65535, got %d", snap.CPU.Cores[0].FreqMHz)
	}
	if snap.CPU.Cores[1].UsagePercent != 0 {
		t.Errorf("Negative usage should clamp to 0, got %d", snap.CPU.Cores[1].UsagePercent)
	}
}

// ============================================================
// Power Workaround Tests
// ============================================================

func TestParse_RAMPowerAverageFallback(t *testing.T) {
	tests := []struct {
		name    string
		rail    string
		current uint32
		average uint32
		want    uint32
	}{
		{"ram bogus average", "ram", 500, 60000, 500},
		{"ram at limit", "ram", 500, RAMPowerAverageLimit, RAMPowerAverageLimit},
		{"ram plausible", "ram", 500, 510, 510},
		{"swap bogus average", "swap", 20, 31000, 20},
		{"swap plausible", "swap", 20, 25000, 25000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestParser()
			doc := fmt.Sprintf(`{"power": {"%s": {"current": %d, "average": %d, "unit": "mW"}}}`,
				tt.rail, tt.current, tt.average)
			snap, err := p.Parse([]byte(doc), testTime)
			if err != nil {
				t.Fatalf("Parse error: %v", err)
			}
			rail := snap.Power.RAM
			if tt.rail == "swap" {
				rail = snap.Power.Swap
			}
			if rail.AverageMW != tt.want {
				t.Errorf("Average = %d, want %d", rail.AverageMW, tt.want)
			}
			if rail.CurrentMW != tt.current {
				t.Errorf("Current = %d, want %d", rail.CurrentMW, tt.current)
			}
		})
	}
}

func TestParse_OtherRailsNotSanityChecked(t *testing.T) {
	p, _ := newTestParser()
	doc := `{"power": {"sys_5v": {"current": 9000, "average": 90000}}}`
	snap, err := p.Parse([]byte(doc), testTime)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if snap.Power.Sys5V.AverageMW != 90000 {
		t.Errorf("sys_5v average should be kept, got %d", snap.Power.Sys5V.AverageMW)
	}
}

// ============================================================
// Temperature Forwarding Tests
// ============================================================

func TestParse_ThermalForwardFailureIsNotFatal(t *testing.T) {
	p, thermal := newTestParser()
	thermal.err = errors.New("fan controller offline")
	snap, err := p.Parse([]byte(`{"temperature": {"cpu": 61.0}}`), testTime)
	if err != nil {
		t.Fatalf("Forwarding failure must not fail the parse: %v", err)
	}
	if snap.Temperature.CPU != 61.0 {
		t.Errorf("CPU temp = %v, want 61.0", snap.Temperature.CPU)
	}
	if len(thermal.readings) != 1 {
		t.Errorf("Expected one forwarded reading, got %v", thermal.readings)
	}
}

func TestParse_ThermalNotForwardedOnBadValue(t *testing.T) {
	p, thermal := newTestParser()
	_, err := p.Parse([]byte(`{"temperature": {"cpu": "hot", "tj": 50}}`), testTime)
	if err == nil {
		t.Fatal("Expected section error for string temperature")
	}
	if len(thermal.readings) != 0 {
		t.Errorf("Nothing should be forwarded, got %v", thermal.readings)
	}
}

func TestParse_NoThermalReporter(t *testing.T) {
	p := NewParser(nil, nil)
	if _, err := p.Parse([]byte(`{"temperature": {"cpu": 40}}`), testTime); err != nil {
		t.Fatalf("Parse error: %v", err)
	}
}

// ============================================================
// String Field Tests
// ============================================================

func TestParse_TimestampCapped(t *testing.T) {
	p, _ := newTestParser()
	long := strings.Repeat("x", MaxTimestampLen+10)
	snap, err := p.Parse([]byte(`{"timestamp": "`+long+`"}`), testTime)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(snap.Timestamp) != MaxTimestampLen {
		t.Errorf("Timestamp length = %d, want %d", len(snap.Timestamp), MaxTimestampLen)
	}
}

func TestCapString_UTF8Boundary(t *testing.T) {
	// "é" is two bytes; a 4 byte cap must not split the second one
	got := capString("aéé", 4)
	if got != "aé" {
		t.Errorf("capString = %q, want %q", got, "aé")
	}
	if capString("short", 10) != "short" {
		t.Error("Short strings must be returned unchanged")
	}
}
