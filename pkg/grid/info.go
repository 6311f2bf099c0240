package grid

import (
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sys/cpu"
)

type Info struct {
	Name            string
	GOARCH          string
	Multiprocessors int
	Features        []string
}

func (i Info) String() string {
	features := "none"
	if len(i.Features) > 0 {
		features = strings.Join(i.Features, ",")
	}
	return fmt.Sprintf("%s (%s, %d multiprocessors, features: %s)", i.Name, i.GOARCH, i.Multiprocessors, features)
}

func (d *Device) Info() Info {
	return Info{
		Name:            "goroutine grid",
		GOARCH:          runtime.GOARCH,
		Multiprocessors: d.workers,
		Features:        cpuFeatures(),
	}
}

func cpuFeatures() []string {
	var features []string
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasSSE41 {
			features = append(features, "sse4.1")
		}
		if cpu.X86.HasAVX2 {
			features = append(features, "avx2")
		}
		if cpu.X86.HasAVX512F {
			features = append(features, "avx512f")
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			features = append(features, "neon")
		}
		if cpu.ARM64.HasSVE {
			features = append(features, "sve")
		}
	}
	return features
}
