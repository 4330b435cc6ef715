package aiextract

import "github.com/chravel/chravel-import/internal/model"

const calendarPrompt = `You extract calendar events for a group trip planner.
Reply with one JSON object: {"events": [...]}. Each event has:
  "title" (string, required), "startTime" (ISO 8601, required),
  "endTime" (ISO 8601, optional), "location", "description",
  "isAllDay" (true when no time of day is given),
  "confidence" (0.0 to 1.0, how sure you are the event is real and correct).
Use the year shown in the source; when none is shown assume the next occurrence.
Do not invent events. Return {"events": []} when there are none.`

const agendaPrompt = `You extract agenda sessions for a conference or festival.
Reply with one JSON object: {"sessions": [...]}. Each session has:
  "title" (string, required), "description", "session_date" (YYYY-MM-DD),
  "start_time" (HH:MM, 24-hour), "end_time" (HH:MM, 24-hour), "location",
  "track", "speakers" (array of names),
  "confidence" (0.0 to 1.0).
Keep the order the sessions appear in. Return {"sessions": []} when there are none.`

const lineupPrompt = `You extract the lineup of an event: performers, artists, speakers or hosts.
Reply with one JSON object: {"names": [...]} listing each person or act once,
exactly as written. Exclude sponsors, venues and organisers.
Return {"names": []} when there are none.`

// SystemPrompt returns the extraction instructions for kind.
func SystemPrompt(kind model.Kind) string {
	switch kind {
	case model.KindAgenda:
		return agendaPrompt
	case model.KindLineup:
		return lineupPrompt
	default:
		return calendarPrompt
	}
}

func sourcePrompt(body string) string {
	return "Source:\n\n" + body
}
