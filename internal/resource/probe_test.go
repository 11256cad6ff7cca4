package resource

import "testing"

func TestParseGPULine(t *testing.T) {
	gpu, ok := parseGPULine("0, NVIDIA RTX 4090, 24576, 20000")
	if !ok {
		t.Fatal("expected successful parse")
	}
	if gpu.DeviceID != 0 || gpu.Name != "NVIDIA RTX 4090" {
		t.Fatalf("unexpected gpu: %+v", gpu)
	}
	wantTotal := uint64(24576) * 1024 * 1024
	if gpu.MemoryTotal != wantTotal {
		t.Fatalf("expected memory total %d, got %d", wantTotal, gpu.MemoryTotal)
	}
}

func TestParseGPULineMalformed(t *testing.T) {
	if _, ok := parseGPULine("not,a,valid,line,extra"); ok {
		t.Fatal("expected parse failure for malformed line")
	}
}

func TestMarkReserved(t *testing.T) {
	gpus := []GPU{{DeviceID: 0}, {DeviceID: 1}, {DeviceID: 2}}
	markReserved(gpus, 1)
	if gpus[0].Available {
		t.Fatal("gpu 0 should be reserved")
	}
	if !gpus[1].Available || !gpus[2].Available {
		t.Fatal("gpus 1 and 2 should be available")
	}
}

func TestSnapshotAvailableGPUs(t *testing.T) {
	s := Snapshot{GPUs: []GPU{{DeviceID: 0, Available: false}, {DeviceID: 1, Available: true}}}
	available := s.AvailableGPUs()
	if len(available) != 1 || available[0].DeviceID != 1 {
		t.Fatalf("unexpected available gpus: %+v", available)
	}
}

func TestSnapshotAvailableCPUThreads(t *testing.T) {
	s := Snapshot{CPUThreads: 8, ReservedCPUThreads: 4}
	if got := s.AvailableCPUThreads(); got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
	s2 := Snapshot{CPUThreads: 4, ReservedCPUThreads: 8}
	if got := s2.AvailableCPUThreads(); got != 0 {
		t.Fatalf("expected floor at 0, got %d", got)
	}
}

func TestFormatMemory(t *testing.T) {
	if got := FormatMemory(1024 * 1024 * 1024); got != "1.0 GB" {
		t.Fatalf("unexpected format: %s", got)
	}
}
