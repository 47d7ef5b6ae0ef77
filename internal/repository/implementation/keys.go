package implementation

import (
	"fmt"
	"time"
)

// Cache TTL for message lists; sessions hashes have no expiry.
const messageTTL = 24 * time.Hour

func sessionsKey(userId string) string {
	return fmt.Sprintf("sessions:%s", userId)
}

func messagesKey(userId, sessionId string) string {
	return fmt.Sprintf("messages:%s:%s", userId, sessionId)
}

func sessionDocId(userId, sessionId string) string {
	return fmt.Sprintf("%s_%s", userId, sessionId)
}

func messageDocId(sessionId string, ms int64) string {
	return fmt.Sprintf("msg_%s_%d", sessionId, ms)
}
