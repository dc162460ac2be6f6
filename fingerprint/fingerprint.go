// Package fingerprint derives a stable, per-device identifier from ambient
// environment attributes. The fingerprint is stored in the security context
// and lets the backend correlate sessions from the same browser/device.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
)

// Device is the composite of attributes the fingerprint is derived from.
// The same attribute set always yields the same fingerprint.
type Device struct {
	UserAgent      string // Client identification string
	Locale         string // e.g. "en-GB"
	ScreenGeometry string // e.g. "2560x1440x24"
	TimezoneOffset int    // Minutes east of UTC
	RenderHash     string // Hash of a fixed rendering probe, stable per device
}

// Derive returns the hex-encoded SHA-256 of the canonical composite.
func (d Device) Derive() string {
	composite := strings.Join([]string{
		d.UserAgent,
		d.Locale,
		d.ScreenGeometry,
		fmt.Sprintf("%d", d.TimezoneOffset),
		d.RenderHash,
	}, "|")
	sum := sha256.Sum256([]byte(composite))
	return hex.EncodeToString(sum[:])
}

// FromEnvironment builds a Device from what the current process can observe.
// Used by the CLI entry points; embedding applications should supply richer
// attributes themselves.
func FromEnvironment(appName, appVersion string) Device {
	hostname, _ := os.Hostname()
	_, tzOffsetSeconds := time.Now().Zone()

	locale := os.Getenv("LANG")
	if locale == "" {
		locale = "en-US"
	}

	return Device{
		UserAgent:      fmt.Sprintf("%s/%s (%s; %s)", appName, appVersion, runtime.GOOS, runtime.GOARCH),
		Locale:         locale,
		ScreenGeometry: hostname,
		TimezoneOffset: tzOffsetSeconds / 60,
		RenderHash:     runtime.Version(),
	}
}
