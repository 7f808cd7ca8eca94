//go:build !linux

package numa

// DetectLinuxTopology is unavailable outside Linux; every caller treats a
// false return as "use the fallback topology", so this just always
// degrades.
func DetectLinuxTopology(preferredNodes int) (Topology, bool) {
	return nil, false
}

// BindToNode is a no-op outside Linux.
func BindToNode(t Topology, node int) error {
	return nil
}
