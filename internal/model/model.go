package model

import "encoding/json"

// ProgramItem is one entry of a concert program.
type ProgramItem struct {
	Composer string `json:"composer"`
	Title    string `json:"title,omitempty"`
}

// Event is a single concert or outreach event as it appears in the site's
// data documents.
//
// Date and Time drive classification. The remaining named fields are what the
// page renderer knows about; any other keys of the source JSON object are kept
// in Extra and written back unchanged by MarshalJSON.
type Event struct {
	Date string `json:"date"`
	Time string `json:"time,omitempty"`

	Name       string        `json:"name,omitempty"`
	Location   string        `json:"location,omitempty"`
	GoogleMaps string        `json:"google-maps,omitempty"`
	Info       string        `json:"info,omitempty"`
	Note       string        `json:"note,omitempty"`
	Type       string        `json:"type,omitempty"`
	Program    []ProgramItem `json:"program,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// eventFields is Event without methods, so the codec does not recurse.
type eventFields Event

var knownKeys = []string{"date", "time", "name", "location", "google-maps", "info", "note", "type", "program"}

func (e *Event) UnmarshalJSON(data []byte) error {
	var f eventFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range knownKeys {
		delete(all, k)
	}
	if len(all) > 0 {
		f.Extra = all
	} else {
		f.Extra = nil
	}
	*e = Event(f)
	return nil
}

func (e Event) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(eventFields(e))
	if err != nil {
		return nil, err
	}
	if len(e.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range e.Extra {
		if _, taken := merged[k]; !taken {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// GalleryImage is a photo on the community page.
type GalleryImage struct {
	Src      string `json:"src"`
	FullSize string `json:"fullSize"`
	Alt      string `json:"alt"`
	Caption  string `json:"caption"`
}
