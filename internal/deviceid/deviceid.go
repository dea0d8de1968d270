// Package deviceid provides persistent device ID management
package deviceid

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/beamapp/beam/internal/config"
)

// GetOrCreate returns the device ID, creating one if it doesn't exist.
// The device ID is persisted in ~/.beam/device_id and is the identity
// advertised in the discovery TXT record.
func GetOrCreate() (string, error) {
	paths, err := config.GetPaths()
	if err != nil {
		return "", err
	}

	// Try to read existing device ID
	data, err := os.ReadFile(paths.DeviceIDFile)
	if err == nil {
		deviceID := strings.TrimSpace(string(data))
		if deviceID != "" {
			return deviceID, nil
		}
	}

	// Generate new device ID
	deviceID := uuid.New().String()

	if err := os.MkdirAll(filepath.Dir(paths.DeviceIDFile), 0700); err != nil {
		return "", err
	}
	if err := os.WriteFile(paths.DeviceIDFile, []byte(deviceID), 0600); err != nil {
		return "", err
	}

	return deviceID, nil
}

// Get returns the device ID if it exists, or empty string if not
func Get() (string, error) {
	paths, err := config.GetPaths()
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(paths.DeviceIDFile)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	return strings.TrimSpace(string(data)), nil
}
