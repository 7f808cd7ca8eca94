//go:build linux

package numa

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

const sysNodeDir = "/sys/devices/system/node"

// linuxTopology is backed by /sys/devices/system/node, the same source the
// libnuma library itself reads. It has no cgo dependency, which keeps this
// module buildable without libnuma-dev installed.
type linuxTopology struct {
	nodeCount int
	cpuToNode map[int]int
}

// DetectLinuxTopology probes /sys/devices/system/node and returns (topology,
// true) on success, or (nil, false) if the hierarchy is absent (containers
// without NUMA visibility, non-NUMA hardware). A positive preferredNodes
// sets the reported node count; otherwise the detected count is used.
func DetectLinuxTopology(preferredNodes int) (Topology, bool) {
	entries, err := os.ReadDir(sysNodeDir)
	if err != nil {
		return nil, false
	}

	cpuToNode := make(map[int]int)
	nodeSet := make(map[int]struct{})
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "node") {
			continue
		}
		nodeNum, err := strconv.Atoi(strings.TrimPrefix(name, "node"))
		if err != nil {
			continue
		}
		nodeSet[nodeNum] = struct{}{}

		cpulistPath := filepath.Join(sysNodeDir, name, "cpulist")
		raw, err := os.ReadFile(cpulistPath)
		if err != nil {
			continue
		}
		for _, cpu := range parseCPUList(strings.TrimSpace(string(raw))) {
			cpuToNode[cpu] = nodeNum
		}
	}

	if len(nodeSet) == 0 {
		return nil, false
	}

	nodes := make([]int, 0, len(nodeSet))
	for n := range nodeSet {
		nodes = append(nodes, n)
	}
	sort.Ints(nodes)

	count := len(nodes)
	if preferredNodes > 0 {
		count = preferredNodes
	}
	return &linuxTopology{nodeCount: count, cpuToNode: cpuToNode}, true
}

// parseCPUList parses sysfs cpulist syntax, e.g. "0-3,5,7-8".
func parseCPUList(s string) []int {
	var out []int
	if s == "" {
		return out
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if dash := strings.IndexByte(part, '-'); dash >= 0 {
			lo, err1 := strconv.Atoi(part[:dash])
			hi, err2 := strconv.Atoi(part[dash+1:])
			if err1 != nil || err2 != nil || hi < lo {
				continue
			}
			for c := lo; c <= hi; c++ {
				out = append(out, c)
			}
		} else if cpu, err := strconv.Atoi(part); err == nil {
			out = append(out, cpu)
		}
	}
	return out
}

func (t *linuxTopology) NodeCount() int { return t.nodeCount }

func (t *linuxTopology) CurrentNode() int {
	// Go does not expose per-goroutine scheduling affinity through the
	// standard library, so absent a cgo/libnuma binding we cannot read
	// back which CPU we last ran on, so this always reports node 0.
	if t.nodeCount <= 1 {
		return 0
	}
	return 0
}

// BindToNode pins the calling goroutine to its own OS thread so that a
// later real affinity call (outside the standard library) would have
// something stable to bind. Without cgo/libnuma there is no portable
// stdlib syscall to set CPU affinity, so this is a best-effort no-op
// beyond the thread pinning; callers must treat failures, and the absence
// of true pinning, as non-fatal, matching bind_thread_to_node's
// degrade-and-log contract.
func BindToNode(t Topology, node int) error {
	if _, ok := t.(*linuxTopology); !ok {
		return nil
	}
	runtime.LockOSThread()
	return nil
}
