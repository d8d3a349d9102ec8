package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// Announcement is the registry-subfeed record a remote handler appends
// to request a connection from a compute resource.
type Announcement struct {
	HandlerID string    `json:"handler_id"`
	Timestamp time.Time `json:"timestamp"`
}

// EncodeAnnouncement serializes an announcement for the registry subfeed.
func EncodeAnnouncement(a *Announcement) ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("wire: encode announcement: %w", err)
	}

	return data, nil
}

// DecodeAnnouncement deserializes a registry-subfeed record.
func DecodeAnnouncement(data []byte) (*Announcement, error) {
	var a Announcement
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("wire: decode announcement: %w", err)
	}
	if a.HandlerID == "" {
		return nil, fmt.Errorf("wire: decode announcement: missing handler_id")
	}

	return &a, nil
}
