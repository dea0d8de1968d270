package audio

// Blacklist holds bundle IDs whose audio is process-global: one audio
// process serves every window of the app, so muting it locally would also
// silence windows that are not being beamed.
type Blacklist struct {
	ids map[string]struct{}
}

// NewBlacklist builds the mute blacklist from bundle IDs.
func NewBlacklist(bundleIDs []string) *Blacklist {
	ids := make(map[string]struct{}, len(bundleIDs))
	for _, id := range bundleIDs {
		ids[id] = struct{}{}
	}
	return &Blacklist{ids: ids}
}

// ShouldMute decides whether the local mute tap may be attached for an app.
// It returns false exactly when the bundle is blacklisted and the app has
// more windows open than are being beamed.
func (b *Blacklist) ShouldMute(bundleID string, totalWindows, beamedWindows int) bool {
	if _, listed := b.ids[bundleID]; listed && totalWindows > beamedWindows {
		return false
	}
	return true
}
