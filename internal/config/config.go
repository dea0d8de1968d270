// Package config holds the runtime options of the beam core and the app's
// on-disk paths
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// ConfigDirName is the name of the config directory
	ConfigDirName = ".beam"
)

// Options tunes the media and control pipelines. Only DeviceID-related state
// is persisted; options live for the process.
type Options struct {
	// TargetFPS is the encoder's expected rate and the capture frame interval
	TargetFPS int
	// VideoBitrate is the encoder's average bitrate in bits per second
	VideoBitrate int
	// AudioBitrateStereo is the AAC bitrate for stereo capture
	AudioBitrateStereo int
	// AudioBitrateMono is the AAC bitrate for mono capture
	AudioBitrateMono int
	// MaxKeyframeInterval is the forced IDR cadence in frames
	MaxKeyframeInterval int
	// HeartbeatInterval is the control-channel ping period
	HeartbeatInterval time.Duration
	// HeartbeatTimeout is the control-channel disconnect threshold
	HeartbeatTimeout time.Duration
	// ReassemblyGCWindow is the reassembler eviction cutoff in 90 kHz ticks
	ReassemblyGCWindow uint32
	// MuteBlacklist holds bundle IDs whose audio is process-global
	MuteBlacklist []string
}

// Default returns the stock option set.
func Default() Options {
	return Options{
		TargetFPS:           30,
		VideoBitrate:        8_000_000,
		AudioBitrateStereo:  128_000,
		AudioBitrateMono:    64_000,
		MaxKeyframeInterval: 60,
		HeartbeatInterval:   5 * time.Second,
		HeartbeatTimeout:    10 * time.Second,
		ReassemblyGCWindow:  90_000,
		MuteBlacklist:       []string{"com.google.Chrome"},
	}
}

// Validate rejects option sets the pipelines cannot run with.
func (o Options) Validate() error {
	if o.TargetFPS <= 0 || o.TargetFPS > 240 {
		return fmt.Errorf("config: targetFps %d out of range", o.TargetFPS)
	}
	if o.VideoBitrate <= 0 {
		return fmt.Errorf("config: videoBitrate must be positive")
	}
	if o.MaxKeyframeInterval <= 0 {
		return fmt.Errorf("config: maxKeyframeInterval must be positive")
	}
	if o.HeartbeatTimeout <= o.HeartbeatInterval {
		return fmt.Errorf("config: heartbeatTimeout must exceed heartbeatInterval")
	}
	return nil
}

// Paths holds commonly used paths
type Paths struct {
	// ConfigDir is ~/.beam
	ConfigDir string
	// DeviceIDFile is ~/.beam/device_id
	DeviceIDFile string
}

// GetPaths returns the standard paths
func GetPaths() (*Paths, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ConfigDirName)
	return &Paths{
		ConfigDir:    configDir,
		DeviceIDFile: filepath.Join(configDir, "device_id"),
	}, nil
}
