package client

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strings"
)

// MachineID computes the installation fingerprint the license is bound
// to: a SHA-256 over the primary MAC address, hostname, CPU identity,
// OS, and architecture. Individual factors fall back to placeholders
// rather than failing, so a partially readable machine still gets a
// stable fingerprint.
func MachineID() string {
	factors := []string{
		primaryMAC(),
		hostname(),
		cpuID(),
		runtime.GOOS,
		runtime.GOARCH,
	}

	hash := sha256.Sum256([]byte(strings.Join(factors, "|")))
	return hex.EncodeToString(hash[:])
}

func primaryMAC() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		slog.Warn("failed to list network interfaces, using fallback MAC",
			slog.String("error", err.Error()))
		return "unknown-mac"
	}

	// Prefer the first up, non-loopback interface with a MAC.
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			return mac
		}
	}

	for _, iface := range interfaces {
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			return mac
		}
	}

	return "unknown-mac"
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown-host"
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "unknown-host"
	}
	return name
}

func cpuID() string {
	switch runtime.GOOS {
	case "windows":
		if procID := os.Getenv("PROCESSOR_IDENTIFIER"); procID != "" {
			return shortHash(procID)
		}
	case "linux":
		if data, err := os.ReadFile("/proc/cpuinfo"); err == nil {
			for _, line := range strings.Split(string(data), "\n") {
				if strings.HasPrefix(line, "model name") {
					return shortHash(line)
				}
			}
		}
	}
	return shortHash(fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH))
}

func shortHash(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:8])
}
