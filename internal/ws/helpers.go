package ws

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

// topicKind maps a topic name to its metrics label.
func topicKind(topic string) string {
	if strings.HasPrefix(topic, "user.") {
		return "notifications"
	}
	return "channel"
}
