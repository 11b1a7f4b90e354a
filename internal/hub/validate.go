package hub

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

const (
	MaxMessageBytes = 4096 // max chat message size on the wire
	MaxTextChars    = 2000 // max chat message character count
	MaxRoomIDBytes  = 128  // max room identifier length
)

// ValidateChatMessage checks that a chat message meets content requirements.
func ValidateChatMessage(text string) error {
	if len(text) == 0 {
		return fmt.Errorf("message text is empty")
	}
	if len(text) > MaxMessageBytes {
		return fmt.Errorf("message exceeds %d byte limit", MaxMessageBytes)
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return fmt.Errorf("message exceeds %d character limit", MaxTextChars)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	return nil
}

// ValidateRoomID checks that a room identifier is well formed. A malformed
// room ID is a client protocol violation: the command is dropped, the
// connection stays open.
func ValidateRoomID(roomID string) error {
	if len(roomID) == 0 {
		return fmt.Errorf("room id is empty")
	}
	if len(roomID) > MaxRoomIDBytes {
		return fmt.Errorf("room id exceeds %d byte limit", MaxRoomIDBytes)
	}
	if !utf8.ValidString(roomID) {
		return fmt.Errorf("room id contains invalid UTF-8")
	}
	for _, r := range roomID {
		if unicode.IsControl(r) {
			return fmt.Errorf("room id contains control characters")
		}
	}
	return nil
}
