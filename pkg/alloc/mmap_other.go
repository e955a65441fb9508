//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package alloc

const mmapSupported = false

// MmapSource falls back to the Go heap where anonymous mappings are unavailable.
type MmapSource = HeapSource
