package protocol

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewCompletionID returns a fresh chat-completion identifier. Random bytes
// keep ids collision-free across concurrent in-flight requests.
func NewCompletionID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano())
	}
	return "chatcmpl-" + hex.EncodeToString(buf)
}

// NewToolCallID returns a unique tool-call identifier.
func NewToolCallID() string {
	return "call_" + uuid.NewString()
}
