// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tegrastats

import (
	"sort"
	"time"
	"unicode/utf8"
)

// Core is a single CPU core reading
type Core struct {
	ID           uint8
	UsagePercent uint8 // 0-100
	FreqMHz      uint16
}

// CPU holds the populated core readings
type CPU struct {
	Cores     [MaxCores]Core
	CoreCount int
}

// ActiveCores returns the populated prefix of Cores
func (c *CPU) ActiveCores() []Core {
	return c.Cores[:c.CoreCount]
}

// MemoryRecord is a RAM or swap reading. CachedMB is only reported for swap.
type MemoryRecord struct {
	UsedMB   uint32
	TotalMB  uint32
	CachedMB uint32
	Unit     string
}

// Memory holds the RAM and swap records
type Memory struct {
	RAM  MemoryRecord
	Swap MemoryRecord
}

// Temperature readings in Celsius
type Temperature struct {
	CPU  float64
	SoC0 float64
	SoC1 float64
	SoC2 float64
	TJ   float64
}

// PowerRail is one power rail reading
type PowerRail struct {
	CurrentMW uint32
	AverageMW uint32
	Unit      string
}

// Power holds the monitored rails
type Power struct {
	GPUSoC PowerRail
	CPUCV  PowerRail
	Sys5V  PowerRail
	RAM    PowerRail
	Swap   PowerRail
}

// GPU holds the 3D engine load
type GPU struct {
	GR3DFreqPercent uint8
}

// Snapshot is one point-in-time reading from the AGX. It is a plain value:
// copying it copies every field, which is what makes wholesale replacement
// under a lock observable as all-old or all-new.
type Snapshot struct {
	Timestamp   string
	CPU         CPU
	Memory      Memory
	Temperature Temperature
	Power       Power
	GPU         GPU

	// Valid is true only if every section present in the source parsed cleanly
	Valid bool

	// CapturedAt is the local clock reading when parsing completed
	CapturedAt time.Time
}

// Age returns how long ago the snapshot was captured
func (s *Snapshot) Age(now time.Time) time.Duration {
	if s.CapturedAt.IsZero() {
		return 0
	}
	return now.Sub(s.CapturedAt)
}

// SectionResults records the outcome of every section the parser attempted.
// A nil value means the section parsed cleanly.
type SectionResults map[string]error

// Failed returns the names of failed sections in parse order
func (r SectionResults) Failed() []string {
	failed := []string{}
	for name, err := range r {
		if err != nil {
			failed = append(failed, name)
		}
	}
	sort.Slice(failed, func(i, j int) bool {
		return sectionIndex(failed[i]) < sectionIndex(failed[j])
	})
	return failed
}

// OK reports whether every attempted section succeeded
func (r SectionResults) OK() bool {
	for _, err := range r {
		if err != nil {
			return false
		}
	}
	return true
}

func sectionIndex(name string) int {
	for i, s := range Sections {
		if s == name {
			return i
		}
	}
	return len(Sections)
}

// Complete finalizes a freshly parsed snapshot. The parsed fields are kept
// as they are (best effort), Valid is set only when every attempted section
// succeeded, and CapturedAt is stamped. The caller owns any locking.
func Complete(next Snapshot, results SectionResults, capturedAt time.Time) Snapshot {
	next.Valid = results.OK()
	next.CapturedAt = capturedAt
	return next
}

// capString truncates s to at most n bytes without splitting a UTF-8 sequence
func capString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	end := 0
	for end < len(s) {
		_, size := utf8.DecodeRuneInString(s[end:])
		if end+size > n {
			break
		}
		end += size
	}
	return s[:end]
}
