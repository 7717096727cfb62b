package types

// SwapTier describes one provisioned swap device. The compressed RAM-backed
// tier must always carry a higher priority than the disk-backed tier so the
// kernel prefers the lower-latency device.
type SwapTier struct {
	// Device path, e.g. "/swapfile" or "/dev/zram0".
	Device string `json:"device"`
	// Kernel swap priority; higher values are preferred.
	Priority  int    `json:"priority"`
	SizeBytes uint64 `json:"size_bytes"`
	// Compression algorithm for RAM-backed tiers, empty for disk swap.
	CompressionAlgorithm string `json:"compression_algorithm,omitempty"`
}
