//go:build linux

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/OpenTraceLab/OpenTraceXVC/pkg/driver/kerneldrv"
	"github.com/OpenTraceLab/OpenTraceXVC/pkg/driver/uio"
)

// uioBridgeName is the device name the debug bridge registers with the
// UIO subsystem.
const uioBridgeName = "debug_bridge"

// detectBackend probes for local JTAG hardware: the kernel XVC character
// device first, then a UIO debug bridge.
func detectBackend() (name, path string, err error) {
	if _, err := os.Stat(kerneldrv.DefaultDevicePath); err == nil {
		return kerneldrv.BackendName, kerneldrv.DefaultDevicePath, nil
	}

	nodes, _ := filepath.Glob("/sys/class/uio/uio*/name")
	for _, node := range nodes {
		data, err := os.ReadFile(node)
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(data)) == uioBridgeName {
			return uio.BackendName, "/dev/" + filepath.Base(filepath.Dir(node)), nil
		}
	}

	return "", "", fmt.Errorf("no XVC hardware found (%s absent, no %q uio device); pass --backend",
		kerneldrv.DefaultDevicePath, uioBridgeName)
}
