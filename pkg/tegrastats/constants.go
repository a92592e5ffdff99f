// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package tegrastats holds the telemetry data model reported by an AGX compute
// module and the parser that maps a tegrastats JSON document onto it.
//
// A document looks like:
//
//	{"timestamp":"2025-01-01T12:00:00",
//	 "cpu":{"cores":[{"id":0,"usage":12,"freq":1984}]},
//	 "memory":{"ram":{"used":3120,"total":30536,"unit":"MB"},
//	           "swap":{"used":0,"total":15268,"cached":0,"unit":"MB"}},
//	 "temperature":{"cpu":45.2,"soc0":44.1,"soc1":43.9,"soc2":44.0,"tj":46.3},
//	 "power":{"gpu_soc":{"current":1200,"average":1180,"unit":"mW"}, ...},
//	 "gpu":{"gr3d_freq":12}}
//
// Every section is optional.
package tegrastats

// Data model limits
const (
	MaxCores        = 12 // Cores kept per snapshot, extra entries are dropped
	MaxTimestampLen = 32
	MaxUnitLen      = 8
)

// Known peer firmware defect: power.ram.average and power.swap.average
// sometimes carry a memory size instead of a power average. Values above
// these thresholds are replaced by the rail's current reading.
const (
	RAMPowerAverageLimit  = 50000
	SwapPowerAverageLimit = 30000
)

// Section names as they appear in the document
const (
	SectionTimestamp   = "timestamp"
	SectionCPU         = "cpu"
	SectionMemory      = "memory"
	SectionTemperature = "temperature"
	SectionPower       = "power"
	SectionGPU         = "gpu"
)

// Sections lists every top-level section in parse order
var Sections = []string{
	SectionTimestamp,
	SectionCPU,
	SectionMemory,
	SectionTemperature,
	SectionPower,
	SectionGPU,
}
