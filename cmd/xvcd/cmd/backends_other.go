//go:build !linux

package cmd

import "fmt"

// The kernel and uio backends need Linux ioctl and mmap interfaces; off
// Linux only the USB probe and the simulator are available.
func detectBackend() (name, path string, err error) {
	return "", "", fmt.Errorf("backend autodetection is Linux-only; pass --backend cmsisdap or --backend sim")
}
