// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tegrastats

import (
	"fmt"
	"strings"
)

// FormatSnapshot formats a snapshot into a human-readable multi-line string
func FormatSnapshot(s *Snapshot) string {
	var b strings.Builder

	timestamp := s.Timestamp
	if timestamp == "" {
		timestamp = "(none)"
	}
	validity := "VALID"
	if !s.Valid {
		validity = "INCOMPLETE"
	}
	fmt.Fprintf(&b, "Timestamp: %s [%s]\n", timestamp, validity)
	if !s.CapturedAt.IsZero() {
		fmt.Fprintf(&b, "Captured:  %s\n", s.CapturedAt.Format("15:04:05.000"))
	}

	b.WriteString(FormatCPU(&s.CPU))

	b.WriteString("Memory:\n")
	fmt.Fprintf(&b, "  RAM:  %s\n", formatMemory(s.Memory.RAM, false))
	fmt.Fprintf(&b, "  Swap: %s\n", formatMemory(s.Memory.Swap, true))

	b.WriteString("Temperature:\n")
	fmt.Fprintf(&b, "  CPU: %.1f°C  SoC0: %.1f°C  SoC1: %.1f°C  SoC2: %.1f°C  TJ: %.1f°C\n",
		s.Temperature.CPU, s.Temperature.SoC0, s.Temperature.SoC1, s.Temperature.SoC2, s.Temperature.TJ)

	b.WriteString("Power:\n")
	for _, r := range []struct {
		name string
		rail PowerRail
	}{
		{"GPU/SoC", s.Power.GPUSoC},
		{"CPU/CV", s.Power.CPUCV},
		{"SYS 5V", s.Power.Sys5V},
		{"RAM", s.Power.RAM},
		{"Swap", s.Power.Swap},
	} {
		fmt.Fprintf(&b, "  %-8s %s\n", r.name+":", formatRail(r.rail))
	}

	fmt.Fprintf(&b, "GPU: GR3D %d%%\n", s.GPU.GR3DFreqPercent)
	return b.String()
}

// FormatCPU formats the populated CPU cores
func FormatCPU(c *CPU) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CPU (%d cores):\n", c.CoreCount)
	for _, core := range c.ActiveCores() {
		fmt.Fprintf(&b, "  Core %d: %3d%% @ %d MHz\n", core.ID, core.UsagePercent, core.FreqMHz)
	}
	return b.String()
}

func formatMemory(m MemoryRecord, withCached bool) string {
	unit := m.Unit
	if unit == "" {
		unit = "MB"
	}
	var pct float64
	if m.TotalMB > 0 {
		pct = float64(m.UsedMB) * 100.0 / float64(m.TotalMB)
	}
	result := fmt.Sprintf("%d/%d %s (%.1f%%)", m.UsedMB, m.TotalMB, unit, pct)
	if withCached {
		result += fmt.Sprintf(", cached %d %s", m.CachedMB, unit)
	}
	return result
}

func formatRail(r PowerRail) string {
	unit := r.Unit
	if unit == "" {
		unit = "mW"
	}
	return fmt.Sprintf("%d %s (avg %d %s)", r.CurrentMW, unit, r.AverageMW, unit)
}
