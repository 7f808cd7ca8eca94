// Package config reads the NUMA environment switches exactly once, at
// construction, and hands the rest of the module an explicit struct. No
// other package in this module reads these variables.
package config

import (
	"os"
	"strconv"
	"strings"
)

// NumaConfig is the fully-resolved NUMA posture for a process.
type NumaConfig struct {
	// Enabled mirrors MINI_DB_ENABLE_NUMA: true unless the variable is set
	// to exactly "0", "false" or "off" (case-insensitive). Unset or empty
	// means enabled, matching the original implementation's permissive
	// default.
	Enabled bool

	// PreferredNodes mirrors MINI_DB_NUMA_NODES: the number of NUMA nodes
	// to assume, or 0 if unset/invalid/non-positive (meaning "detect or
	// default to 1").
	PreferredNodes int

	// ForcedAllocNode mirrors MINI_DB_NUMA_ALLOC_NODE: a single node to pin
	// all allocations to, or -1 if unset/invalid/negative.
	ForcedAllocNode int
}

// FromEnv reads MINI_DB_ENABLE_NUMA, MINI_DB_NUMA_NODES and
// MINI_DB_NUMA_ALLOC_NODE once and returns the resolved configuration.
func FromEnv() NumaConfig {
	return NumaConfig{
		Enabled:         isNumaEnabled(os.Getenv("MINI_DB_ENABLE_NUMA")),
		PreferredNodes:  readEnvNodes(os.Getenv("MINI_DB_NUMA_NODES")),
		ForcedAllocNode: forcedAllocNode(os.Getenv("MINI_DB_NUMA_ALLOC_NODE")),
	}
}

func isNumaEnabled(raw string) bool {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "0", "false", "off":
		return false
	default:
		return true
	}
}

func readEnvNodes(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

func forcedAllocNode(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return -1
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return -1
	}
	return n
}
