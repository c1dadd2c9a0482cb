package db

// Persisted key layout
const (
	KeySession       = "currentUser"
	KeyUsers         = "users"
	KeySettings      = "adminSettings"
	KeyTickets       = "tickets"
	KeyBanners       = "banners"
	KeyLinks         = "links"
	KeyNotices       = "notices"
	supportKeyPrefix = "support_"
	readKeyPrefix    = "readCount_"
)

// SupportKey is the per-user message log key
func SupportKey(userID string) string {
	return supportKeyPrefix + userID
}

// ReadCountKey is the per-user read watermark key
func ReadCountKey(userID string) string {
	return readKeyPrefix + userID
}

// CollectionKeys lists every envelope-shaped key with a fixed name
func CollectionKeys() []string {
	return []string{KeyUsers, KeyTickets, KeyBanners, KeyLinks, KeyNotices}
}
