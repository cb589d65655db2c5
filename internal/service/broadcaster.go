package service

// Broadcaster pushes session events to connected watchers. The ws hub
// implements it; services treat it as optional (nil means no stream).
type Broadcaster interface {
	BroadcastToSession(sessionID string, event string, payload map[string]interface{})
}
