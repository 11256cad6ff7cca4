package resource

import (
	"bufio"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
)

// GPU describes one detected graphics device.
type GPU struct {
	DeviceID     int
	Name         string
	MemoryTotal  uint64 // bytes
	MemoryFree   uint64 // bytes
	Available    bool   // false when reserved for the host process
}

const nvidiaSMITimeout = 5 * time.Second

// detectGPUs runs nvidia-smi's CSV query mode and parses device rows. A
// vendor management library (NVML) would be tried first in a production
// build; this module only has nvidia-smi available, so it is the sole
// detection method. Any failure yields an empty list rather than an
// error — callers degrade to CPU rendering.
func detectGPUs() []GPU {
	ctx, cancel := context.WithTimeout(context.Background(), nvidiaSMITimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=index,name,memory.total,memory.free",
		"--format=csv,noheader,nounits")
	out, err := cmd.Output()
	if err != nil {
		logging.Log.WithError(err).Debug("nvidia-smi unavailable, reporting zero GPUs")
		return nil
	}

	var gpus []GPU
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		gpu, ok := parseGPULine(scanner.Text())
		if ok {
			gpus = append(gpus, gpu)
		}
	}
	return gpus
}

func parseGPULine(line string) (GPU, bool) {
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return GPU{}, false
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	index, err := strconv.Atoi(fields[0])
	if err != nil {
		return GPU{}, false
	}
	totalMiB, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return GPU{}, false
	}
	freeMiB, err := strconv.ParseUint(fields[3], 10, 64)
	if err != nil {
		return GPU{}, false
	}

	const mib = 1024 * 1024
	return GPU{
		DeviceID:    index,
		Name:        fields[1],
		MemoryTotal: totalMiB * mib,
		MemoryFree:  freeMiB * mib,
	}, true
}

// FormatMemory renders a byte count as a human-readable "X.X GB" string.
func FormatMemory(bytes uint64) string {
	gb := float64(bytes) / (1024 * 1024 * 1024)
	return strconv.FormatFloat(gb, 'f', 1, 64) + " GB"
}
