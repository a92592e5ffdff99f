// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tegrastats

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned when the document is not well-formed JSON
var ErrInvalidJSON = errors.New("invalid tegrastats JSON")

// ThermalReporter receives the AGX CPU temperature as soon as it is parsed.
// The fan controller uses it as an input to its curve.
type ThermalReporter interface {
	ReportAGXTemperature(celsius float64) error
}

// SectionError lists the sections that failed to parse. The snapshot
// returned alongside it still carries every field that could be read.
type SectionError struct {
	Results SectionResults
}

func (e *SectionError) Error() string {
	parts := []string{}
	for _, name := range e.Results.Failed() {
		parts = append(parts, fmt.Sprintf("%s (%v)", name, e.Results[name]))
	}
	return "tegrastats sections failed: " + strings.Join(parts, ", ")
}

// Parser maps tegrastats JSON documents onto snapshots
type Parser struct {
	MaxCores int
	Thermal  ThermalReporter
	Logger   *slog.Logger
}

// NewParser creates a parser with the default core limit
func NewParser(thermal ThermalReporter, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Parser{
		MaxCores: MaxCores,
		Thermal:  thermal,
		Logger:   logger,
	}
}

// Parse builds a new snapshot from doc, stamped with capturedAt.
//
// Returns ErrInvalidJSON (and a zero snapshot) if doc is not JSON at all.
// Returns a *SectionError together with a best-effort snapshot whose Valid
// flag is false if any present section had a problem. Absent sections are
// not errors and leave their fields zero.
func (p *Parser) Parse(doc []byte, capturedAt time.Time) (Snapshot, error) {
	if !gjson.ValidBytes(doc) {
		return Snapshot{}, ErrInvalidJSON
	}
	root := gjson.ParseBytes(doc)
	if !root.IsObject() {
		return Snapshot{}, fmt.Errorf("%w: top level is %s, not an object", ErrInvalidJSON, root.Type)
	}

	var snap Snapshot
	results := SectionResults{}

	sectionParsers := map[string]func(gjson.Result, *Snapshot) error{
		SectionTimestamp:   p.parseTimestamp,
		SectionCPU:         p.parseCPU,
		SectionMemory:      p.parseMemory,
		SectionTemperature: p.parseTemperature,
		SectionPower:       p.parsePower,
		SectionGPU:         p.parseGPU,
	}

	for _, name := range Sections {
		v := root.Get(name)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		results[name] = sectionParsers[name](v, &snap)
		if results[name] != nil {
			p.Logger.Debug("section parse failed", "section", name, "error", results[name])
		}
	}

	snap = Complete(snap, results, capturedAt)
	if !snap.Valid {
		return snap, &SectionError{Results: results}
	}
	return snap, nil
}

func (p *Parser) parseTimestamp(v gjson.Result, s *Snapshot) error {
	if v.Type != gjson.String {
		return fmt.Errorf("expected string, got %s", v.Type)
	}
	s.Timestamp = capString(v.Str, MaxTimestampLen)
	return nil
}

func (p *Parser) parseCPU(v gjson.Result, s *Snapshot) error {
	if !v.IsObject() {
		return fmt.Errorf("expected object, got %s", v.Type)
	}
	cores := v.Get("cores")
	if !cores.Exists() || cores.Type == gjson.Null {
		return nil
	}
	if !cores.IsArray() {
		return fmt.Errorf("cores: expected array, got %s", cores.Type)
	}

	items := cores.Array()
	limit := p.MaxCores
	if limit <= 0 || limit > MaxCores {
		limit = MaxCores
	}
	if len(items) > limit {
		p.Logger.Warn("too many CPU cores in telemetry, truncating",
			"reported", len(items), "kept", limit)
		items = items[:limit]
	}

	var errs []error
	for i, item := range items {
		core := &s.CPU.Cores[i]
		if !item.IsObject() {
			errs = append(errs, fmt.Errorf("cores[%d]: expected object, got %s", i, item.Type))
			continue
		}
		if id, ok, err := readUint(item, "id", math.MaxUint8); err != nil {
			errs = append(errs, fmt.Errorf("cores[%d].%w", i, err))
		} else if ok {
			core.ID = uint8(id)
		}
		if usage, ok, err := readClamped(item, "usage", 100); err != nil {
			errs = append(errs, fmt.Errorf("cores[%d].%w", i, err))
		} else if ok {
			core.UsagePercent = uint8(usage)
		}
		if freq, ok, err := readClamped(item, "freq", math.MaxUint16); err != nil {
			errs = append(errs, fmt.Errorf("cores[%d].%w", i, err))
		} else if ok {
			core.FreqMHz = uint16(freq)
		}
	}
	s.CPU.CoreCount = len(items)
	return errors.Join(errs...)
}

func (p *Parser) parseMemory(v gjson.Result, s *Snapshot) error {
	if !v.IsObject() {
		return fmt.Errorf("expected object, got %s", v.Type)
	}
	var errs []error
	if ram := v.Get("ram"); ram.Exists() && ram.Type != gjson.Null {
		if err := readMemoryRecord(ram, &s.Memory.RAM, false); err != nil {
			errs = append(errs, fmt.Errorf("ram: %w", err))
		}
	}
	if swap := v.Get("swap"); swap.Exists() && swap.Type != gjson.Null {
		if err := readMemoryRecord(swap, &s.Memory.Swap, true); err != nil {
			errs = append(errs, fmt.Errorf("swap: %w", err))
		}
	}
	return errors.Join(errs...)
}

func readMemoryRecord(v gjson.Result, rec *MemoryRecord, withCached bool) error {
	if !v.IsObject() {
		return fmt.Errorf("expected object, got %s", v.Type)
	}
	var errs []error
	errs = append(errs, readUint32Into(v, "used", &rec.UsedMB))
	errs = append(errs, readUint32Into(v, "total", &rec.TotalMB))
	if withCached {
		errs = append(errs, readUint32Into(v, "cached", &rec.CachedMB))
	}
	errs = append(errs, readStringInto(v, "unit", MaxUnitLen, &rec.Unit))
	return errors.Join(errs...)
}

func (p *Parser) parseTemperature(v gjson.Result, s *Snapshot) error {
	if !v.IsObject() {
		return fmt.Errorf("expected object, got %s", v.Type)
	}
	var errs []error
	cpuPresent := false
	if f := v.Get("cpu"); f.Exists() && f.Type == gjson.Number {
		cpuPresent = true
	}
	errs = append(errs, readFloatInto(v, "cpu", &s.Temperature.CPU))
	errs = append(errs, readFloatInto(v, "soc0", &s.Temperature.SoC0))
	errs = append(errs, readFloatInto(v, "soc1", &s.Temperature.SoC1))
	errs = append(errs, readFloatInto(v, "soc2", &s.Temperature.SoC2))
	errs = append(errs, readFloatInto(v, "tj", &s.Temperature.TJ))

	if cpuPresent && p.Thermal != nil {
		if err := p.Thermal.ReportAGXTemperature(s.Temperature.CPU); err != nil {
			p.Logger.Warn("failed to forward AGX CPU temperature", "celsius", s.Temperature.CPU, "error", err)
		}
	}
	return errors.Join(errs...)
}

func (p *Parser) parsePower(v gjson.Result, s *Snapshot) error {
	if !v.IsObject() {
		return fmt.Errorf("expected object, got %s", v.Type)
	}
	rails := []struct {
		name  string
		rail  *PowerRail
		limit uint32 // 0 = no average sanity check
	}{
		{"gpu_soc", &s.Power.GPUSoC, 0},
		{"cpu_cv", &s.Power.CPUCV, 0},
		{"sys_5v", &s.Power.Sys5V, 0},
		{"ram", &s.Power.RAM, RAMPowerAverageLimit},
		{"swap", &s.Power.Swap, SwapPowerAverageLimit},
	}

	var errs []error
	for _, r := range rails {
		rv := v.Get(r.name)
		if !rv.Exists() || rv.Type == gjson.Null {
			continue
		}
		if !rv.IsObject() {
			errs = append(errs, fmt.Errorf("%s: expected object, got %s", r.name, rv.Type))
			continue
		}
		var rerrs []error
		rerrs = append(rerrs, readUint32Into(rv, "current", &r.rail.CurrentMW))
		rerrs = append(rerrs, readUint32Into(rv, "average", &r.rail.AverageMW))
		rerrs = append(rerrs, readStringInto(rv, "unit", MaxUnitLen, &r.rail.Unit))
		if r.limit > 0 && r.rail.AverageMW > r.limit {
			p.Logger.Warn("implausible power average, using current reading",
				"rail", r.name, "average", r.rail.AverageMW, "current", r.rail.CurrentMW, "limit", r.limit)
			r.rail.AverageMW = r.rail.CurrentMW
		}
		if err := errors.Join(rerrs...); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.name, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Parser) parseGPU(v gjson.Result, s *Snapshot) error {
	if !v.IsObject() {
		return fmt.Errorf("expected object, got %s", v.Type)
	}
	freq, ok, err := readClamped(v, "gr3d_freq", 100)
	if err != nil {
		return err
	}
	if ok {
		s.GPU.GR3DFreqPercent = uint8(freq)
	}
	return nil
}

//////////////////////////////////////////////////////////////
// Field readers
//
// A missing or null field is not an error and leaves the target untouched.
// A field of the wrong type is reported and also leaves the target untouched.
//////////////////////////////////////////////////////////////

func lookup(obj gjson.Result, name string) (gjson.Result, bool) {
	v := obj.Get(name)
	if !v.Exists() || v.Type == gjson.Null {
		return v, false
	}
	return v, true
}

func readNumber(obj gjson.Result, name string) (float64, bool, error) {
	v, ok := lookup(obj, name)
	if !ok {
		return 0, false, nil
	}
	if v.Type != gjson.Number {
		return 0, false, fmt.Errorf("%s: expected number, got %s", name, v.Type)
	}
	return v.Num, true, nil
}

// readUint reads a non-negative integer no larger than max
func readUint(obj gjson.Result, name string, max uint64) (uint64, bool, error) {
	n, ok, err := readNumber(obj, name)
	if err != nil || !ok {
		return 0, ok, err
	}
	if n < 0 || n > float64(max) {
		return 0, false, fmt.Errorf("%s: %v out of range (0-%d)", name, n, max)
	}
	return uint64(n), true, nil
}

// readClamped reads a number and clamps it into [0, max]
func readClamped(obj gjson.Result, name string, max uint64) (uint64, bool, error) {
	n, ok, err := readNumber(obj, name)
	if err != nil || !ok {
		return 0, ok, err
	}
	switch {
	case n < 0:
		return 0, true, nil
	case n > float64(max):
		return max, true, nil
	}
	return uint64(n), true, nil
}

func readUint32Into(obj gjson.Result, name string, dst *uint32) error {
	n, ok, err := readUint(obj, name, math.MaxUint32)
	if err != nil {
		return err
	}
	if ok {
		*dst = uint32(n)
	}
	return nil
}

func readFloatInto(obj gjson.Result, name string, dst *float64) error {
	n, ok, err := readNumber(obj, name)
	if err != nil {
		return err
	}
	if ok {
		*dst = n
	}
	return nil
}

func readStringInto(obj gjson.Result, name string, maxLen int, dst *string) error {
	v, ok := lookup(obj, name)
	if !ok {
		return nil
	}
	if v.Type != gjson.String {
		return fmt.Errorf("%s: expected string, got %s", name, v.Type)
	}
	*dst = capString(v.Str, maxLen)
	return nil
}
