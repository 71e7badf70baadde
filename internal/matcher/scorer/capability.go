package scorer

import (
	"math/bits"
	"runtime"

	"golang.org/x/sys/cpu"
)

// Capability records whether the block locator may be used. It is computed
// once and passed to every Scorer explicitly.
type Capability struct {
	Vector   bool     `json:"vector"`
	Arch     string   `json:"arch"`
	Features []string `json:"features"`
}

// Detect inspects the running CPU. The block locator runs on two 64-bit
// lanes, so it is enabled on every 64-bit target; the reported features
// describe the vector units present.
func Detect() Capability {
	c := Capability{
		Vector: bits.UintSize == 64,
		Arch:   runtime.GOARCH,
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasSSE2 {
			c.Features = append(c.Features, "sse2")
		}
		if cpu.X86.HasSSE42 {
			c.Features = append(c.Features, "sse4.2")
		}
		if cpu.X86.HasAVX2 {
			c.Features = append(c.Features, "avx2")
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			c.Features = append(c.Features, "asimd")
		}
	}
	if c.Vector {
		c.Features = append(c.Features, "swar64")
	}
	return c
}

// Scalar returns a capability that forces the byte-by-byte locator.
func Scalar() Capability {
	return Capability{Arch: runtime.GOARCH}
}

// Resolve applies a configured mode ("auto", "on", "off") to a detected
// capability. "on" cannot enable a path the platform lacks.
func (c Capability) Resolve(mode string) Capability {
	if mode == "off" {
		c.Vector = false
	}
	return c
}
