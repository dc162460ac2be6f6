package config

import "time"

type SecurityConfig interface {
	GetInactivityThreshold() time.Duration
	GetPopupPollInterval() time.Duration
	GetStateTokenLength() int
	GetReportWindow() time.Duration
	GetMemorySampleInterval() time.Duration
	GetDebuggerProbeInterval() time.Duration
	GetHeapPressureThreshold() uint64
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetInactivityThreshold() time.Duration {
	return 30 * time.Minute // Sessions expire after 30 minutes without activity
}

func (Security) GetPopupPollInterval() time.Duration {
	return 500 * time.Millisecond // How often the broker checks whether the popup was closed
}

func (Security) GetStateTokenLength() int {
	return 32 // 32 bytes = 256 bits
}

func (Security) GetReportWindow() time.Duration {
	return time.Minute // At most one anomaly report per window
}

func (Security) GetMemorySampleInterval() time.Duration {
	return 30 * time.Second
}

func (Security) GetDebuggerProbeInterval() time.Duration {
	return time.Second
}

func (Security) GetHeapPressureThreshold() uint64 {
	return 512 << 20 // 512 MiB of live heap counts as memory pressure
}
