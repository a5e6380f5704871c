package preflight

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// GPU is one row of nvidia-smi's inventory.
type GPU struct {
	Index         int
	Name          string
	MemoryTotalMB int
	MemoryUsedMB  int
}

func (g GPU) String() string {
	return fmt.Sprintf("GPU %d %s (%d/%d MiB used)", g.Index, g.Name, g.MemoryUsedMB, g.MemoryTotalMB)
}

var gpuQueryArgs = []string{
	"--query-gpu=index,name,memory.total,memory.used",
	"--format=csv,noheader,nounits",
}

// ParseGPUList parses nvidia-smi CSV output produced with gpuQueryArgs.
// Malformed rows are skipped.
func ParseGPUList(out string) []GPU {
	var gpus []GPU
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, ",")
		if len(fields) != 4 {
			continue
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		idx, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		total, _ := strconv.Atoi(fields[2])
		used, _ := strconv.Atoi(fields[3])
		gpus = append(gpus, GPU{Index: idx, Name: fields[1], MemoryTotalMB: total, MemoryUsedMB: used})
	}
	return gpus
}

// CheckDevices verifies that every index in a CUDA_VISIBLE_DEVICES-style
// selection exists. An empty selection means all devices.
func CheckDevices(gpus []GPU, device string) error {
	if len(gpus) == 0 {
		return fmt.Errorf("no GPUs detected")
	}
	device = strings.TrimSpace(device)
	if device == "" {
		return nil
	}
	present := make(map[int]bool, len(gpus))
	for _, g := range gpus {
		present[g.Index] = true
	}
	for _, part := range strings.Split(device, ",") {
		part = strings.TrimSpace(part)
		idx, err := strconv.Atoi(part)
		if err != nil {
			// UUID or MIG selectors are passed through unchecked
			continue
		}
		if !present[idx] {
			return fmt.Errorf("selected GPU %d does not exist (%d detected)", idx, len(gpus))
		}
	}
	return nil
}

// GPUInventory lists GPUs through nvidia-smi and validates the device
// selection. It is optional: engines fall back to CPU or fail on their own.
func GPUInventory(device string) Check {
	return Check{
		Name: "gpu",
		Hint: "set the backend device to an index reported by nvidia-smi, or leave it empty to use all GPUs",
		Probe: func(ctx context.Context) (string, error) {
			out, err := command(ctx, "nvidia-smi", gpuQueryArgs...)
			if err != nil {
				return "", err
			}
			gpus := ParseGPUList(out)
			if err := CheckDevices(gpus, device); err != nil {
				return "", err
			}
			names := make([]string, len(gpus))
			for i, g := range gpus {
				names[i] = g.String()
			}
			diag := strings.Join(names, "; ")
			if device != "" {
				diag += "; using " + device
			}
			return diag, nil
		},
	}
}
