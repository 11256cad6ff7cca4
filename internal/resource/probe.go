// Package resource discovers GPUs, CPU capacity, and renderer executable
// locations, and applies the reservation policy that marks some of that
// capacity unavailable to the batch render pool.
package resource

import (
	"runtime"
	"sync"

	"github.com/catalystcommunity/app-utils-go/logging"
	gopsutilcpu "github.com/shirou/gopsutil/v3/cpu"
)

// Snapshot is a point-in-time view of probed hardware and resolved
// reservation policy.
type Snapshot struct {
	GPUs                []GPU
	CPUCores            int
	CPUThreads          int
	ReservedGPUCount    int
	ReservedCPUThreads  int
	MayapyPath          string
	RenderBinaryPath    string
}

// AvailableGPUs returns the GPUs not reserved for the host process.
func (s Snapshot) AvailableGPUs() []GPU {
	var out []GPU
	for _, g := range s.GPUs {
		if g.Available {
			out = append(out, g)
		}
	}
	return out
}

// AvailableCPUThreads is CPUThreads minus ReservedCPUThreads, floored at 0.
func (s Snapshot) AvailableCPUThreads() int {
	if s.CPUThreads <= s.ReservedCPUThreads {
		return 0
	}
	return s.CPUThreads - s.ReservedCPUThreads
}

// Probe detects and caches hardware resources. Executable paths are
// looked up once and the result, found or not, is cached for the
// probe's lifetime; GPU/CPU counts are
// refreshed on every Snapshot call since availability can change between
// renders (a GPU may free up, a process may exit).
type Probe struct {
	reservedGPUCount   int
	reservedCPUThreads int

	mu               sync.Mutex
	mayapyPath       string
	mayapyResolved   bool
	renderPath       string
	renderResolved   bool
}

// New builds a Probe that reserves reservedGPUCount GPUs (by device
// index, lowest first) and reservedCPUThreads CPU threads for the host
// process, excluding them from the available pool.
func New(reservedGPUCount, reservedCPUThreads int) *Probe {
	return &Probe{
		reservedGPUCount:   reservedGPUCount,
		reservedCPUThreads: reservedCPUThreads,
	}
}

// Snapshot probes current GPU/CPU state and returns a Snapshot. It never
// returns an error: any detection failure degrades to an empty GPU list
// or a conservative CPU estimate, logged as a diagnostic.
func (p *Probe) Snapshot() Snapshot {
	gpus := detectGPUs()
	markReserved(gpus, p.reservedGPUCount)

	cores, threads := detectCPU()

	return Snapshot{
		GPUs:               gpus,
		CPUCores:           cores,
		CPUThreads:         threads,
		ReservedGPUCount:   p.reservedGPUCount,
		ReservedCPUThreads: p.reservedCPUThreads,
		MayapyPath:         p.mayapy(),
		RenderBinaryPath:   p.renderBinary(),
	}
}

// markReserved marks the first n GPUs (by slice order, which follows
// device index ascending) unavailable. This is a uniform index cutoff:
// no GPU index carries special "batch GPU" meaning, only its position
// relative to the reservation count.
func markReserved(gpus []GPU, n int) {
	for i := range gpus {
		gpus[i].Available = i >= n
	}
}

func detectCPU() (cores, threads int) {
	threads = runtime.NumCPU()

	physical, err := gopsutilcpu.Counts(false)
	if err != nil || physical == 0 {
		logging.Log.WithError(err).Debug("physical core count unavailable, estimating as threads/2")
		cores = threads / 2
		if cores == 0 {
			cores = 1
		}
		return cores, threads
	}
	return physical, threads
}

func (p *Probe) mayapy() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.mayapyResolved {
		p.mayapyPath = findMayapy()
		p.mayapyResolved = true
	}
	return p.mayapyPath
}

func (p *Probe) renderBinary() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.renderResolved {
		p.renderPath = findRenderBinary()
		p.renderResolved = true
	}
	return p.renderPath
}
