// Package feed loads the site's event documents.
//
// A document is a JSON object with a top-level "concerts" array. Older
// documents split events into "upcoming" and "past" arrays by hand; those
// are merged back into one list, since the split is recomputed anyway.
package feed

import (
	"encoding/json"
	"fmt"

	"ensemble/internal/model"
)

type document struct {
	Concerts *[]model.Event `json:"concerts"`
	Upcoming []model.Event  `json:"upcoming"`
	Past     []model.Event  `json:"past"`
}

// Decode parses an event document. A present, non-null "concerts" array
// wins, even when empty.
func Decode(body []byte) ([]model.Event, error) {
	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode event document: %w", err)
	}
	if doc.Concerts != nil {
		return *doc.Concerts, nil
	}
	events := make([]model.Event, 0, len(doc.Upcoming)+len(doc.Past))
	events = append(events, doc.Upcoming...)
	events = append(events, doc.Past...)
	return events, nil
}

// DecodeGallery parses a JSON array of gallery images.
func DecodeGallery(body []byte) ([]model.GalleryImage, error) {
	var images []model.GalleryImage
	if err := json.Unmarshal(body, &images); err != nil {
		return nil, fmt.Errorf("decode gallery: %w", err)
	}
	return images, nil
}
