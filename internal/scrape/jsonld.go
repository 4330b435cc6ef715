package scrape

import (
	"encoding/json"
	"strings"
)

// Event is a schema.org Event found in a page's JSON-LD
type Event struct {
	Name        string   `json:"name"`
	StartDate   string   `json:"startDate"`
	EndDate     string   `json:"endDate,omitempty"`
	Location    string   `json:"location,omitempty"`
	Description string   `json:"description,omitempty"`
	Performers  []string `json:"performers,omitempty"`
}

func parseJSONLD(raw string) []Event {
	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &v); err != nil {
		return nil
	}
	var events []Event
	walkJSONLD(v, &events)
	return events
}

func walkJSONLD(v any, out *[]Event) {
	switch n := v.(type) {
	case []any:
		for _, item := range n {
			walkJSONLD(item, out)
		}
	case map[string]any:
		if graph, ok := n["@graph"]; ok {
			walkJSONLD(graph, out)
		}
		if isEventType(n["@type"]) {
			if ev, ok := toEvent(n); ok {
				*out = append(*out, ev)
			}
		}
		// Festivals nest their performances as subEvent.
		if sub, ok := n["subEvent"]; ok {
			walkJSONLD(sub, out)
		}
	}
}

func isEventType(t any) bool {
	switch v := t.(type) {
	case string:
		return strings.HasSuffix(v, "Event") || v == "Festival"
	case []any:
		for _, item := range v {
			if isEventType(item) {
				return true
			}
		}
	}
	return false
}

func toEvent(n map[string]any) (Event, bool) {
	ev := Event{
		Name:        strings.TrimSpace(stringOf(n["name"])),
		StartDate:   stringOf(n["startDate"]),
		EndDate:     stringOf(n["endDate"]),
		Location:    placeOf(n["location"]),
		Description: strings.TrimSpace(stringOf(n["description"])),
		Performers:  namesOf(n["performer"]),
	}
	return ev, ev.Name != "" && ev.StartDate != ""
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func placeOf(v any) string {
	switch p := v.(type) {
	case string:
		return strings.TrimSpace(p)
	case []any:
		if len(p) > 0 {
			return placeOf(p[0])
		}
	case map[string]any:
		name := strings.TrimSpace(stringOf(p["name"]))
		addr := ""
		switch a := p["address"].(type) {
		case string:
			addr = strings.TrimSpace(a)
		case map[string]any:
			var parts []string
			for _, k := range []string{"streetAddress", "addressLocality", "addressRegion", "addressCountry"} {
				if s := strings.TrimSpace(stringOf(a[k])); s != "" {
					parts = append(parts, s)
				}
			}
			addr = strings.Join(parts, ", ")
		}
		switch {
		case name != "" && addr != "" && name != addr:
			return name + ", " + addr
		case name != "":
			return name
		default:
			return addr
		}
	}
	return ""
}

func namesOf(v any) []string {
	switch p := v.(type) {
	case string:
		if s := strings.TrimSpace(p); s != "" {
			return []string{s}
		}
	case map[string]any:
		if s := strings.TrimSpace(stringOf(p["name"])); s != "" {
			return []string{s}
		}
	case []any:
		var names []string
		for _, item := range p {
			names = append(names, namesOf(item)...)
		}
		return names
	}
	return nil
}
