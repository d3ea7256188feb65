package cmd

import (
	"bytes"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/OpenTraceLab/OpenTraceXVC/pkg/driver"
	"github.com/OpenTraceLab/OpenTraceXVC/pkg/server"
)

// TestProbeE2E runs the probe command against a live loopback server.
func TestProbeE2E(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	go server.New(&driver.Sim{MaxShiftBits: 4096}, server.Config{}).Serve(l)

	// Capture stdout
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		io.Copy(&buf, r)
		close(done)
	}()

	rootCmd.SetArgs([]string{"probe", l.Addr().String(), "--tck", "10"})
	execErr := rootCmd.Execute()

	w.Close()
	os.Stdout = old
	<-done

	if execErr != nil {
		t.Fatalf("probe: %v", execErr)
	}
	out := buf.String()
	for _, want := range []string{"xvcServer_v1.0", "4096 bits", "got 10 ns"} {
		if !strings.Contains(out, want) {
			t.Errorf("probe output missing %q:\n%s", want, out)
		}
	}
}

func TestLoadConfigOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "xvcd.toml")
	cfg := `
listen = ":3333"
backend = "uio"
device = "/dev/uio7"
poll_timeout = "5ms"
max_vector = 1024
`
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	// An explicit flag must win over the file.
	if err := serveCmd.Flags().Set("listen", ":4444"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	listenAddr = ":4444"
	configPath = path
	t.Cleanup(func() {
		configPath = ""
		listenAddr = server.DefaultAddr
		backendName, devicePath = "", ""
		pollTimeout, maxVector = 0, 0
	})

	if err := loadConfig(serveCmd); err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if listenAddr != ":4444" {
		t.Errorf("listen = %q, want flag value :4444", listenAddr)
	}
	if backendName != "uio" || devicePath != "/dev/uio7" {
		t.Errorf("backend/device = %q/%q, want uio//dev/uio7", backendName, devicePath)
	}
	if pollTimeout != 5*time.Millisecond {
		t.Errorf("poll_timeout = %v, want 5ms", pollTimeout)
	}
	if maxVector != 1024 {
		t.Errorf("max_vector = %d, want 1024", maxVector)
	}
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "xvcd.toml")
	if err := os.WriteFile(path, []byte("listne = \":2542\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	configPath = path
	t.Cleanup(func() { configPath = "" })

	if err := loadConfig(serveCmd); err == nil {
		t.Error("loadConfig() accepted a misspelled key")
	}
}
