package discovery

import (
	"strings"

	"github.com/beamapp/beam/internal/registry"
)

// Required TXT keys on a beam advertisement.
const (
	txtVersion  = "version"
	txtPlatform = "platform"
	txtDeviceID = "deviceID"
	txtName     = "name"
)

// encodeTXT renders the advertisement TXT record as key=value strings.
func encodeTXT(version, platform, deviceID, name string) []string {
	return []string{
		txtVersion + "=" + version,
		txtPlatform + "=" + platform,
		txtDeviceID + "=" + deviceID,
		txtName + "=" + name,
	}
}

// parseTXT splits key=value TXT strings into a map. Entries without '=' are
// skipped; unknown keys are kept as-is and consumers ignore what they don't
// know, which is how the version key stays forward-compatible.
func parseTXT(txt []string) map[string]string {
	m := make(map[string]string, len(txt))
	for _, kv := range txt {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		m[k] = v
	}
	return m
}

// peerFromTXT builds a Peer from a resolved advertisement. It returns
// ok=false for advertisements without a deviceID and for our own (selfID).
func peerFromTXT(txt []string, host string, port int, selfID string) (registry.Peer, bool) {
	m := parseTXT(txt)

	id := m[txtDeviceID]
	if id == "" || id == selfID {
		return registry.Peer{}, false
	}

	name := m[txtName]
	if name == "" {
		name = id
	}

	return registry.Peer{
		ID:       id,
		Name:     name,
		Platform: m[txtPlatform],
		Host:     host,
		Port:     port,
	}, true
}
