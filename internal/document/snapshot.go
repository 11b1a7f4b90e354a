package document

// Snapshot is the payload published to the NATS doc.persist subject when a
// debounce window closes (or is cancelled with content still pending). The
// docwriter service consumes it and persists the content via Put.
type Snapshot struct {
	DocumentID string `json:"documentId"`
	RoomID     string `json:"roomId"`
	Content    string `json:"content"`
	UserID     string `json:"userId"`
	Ts         int64  `json:"ts"`
}
