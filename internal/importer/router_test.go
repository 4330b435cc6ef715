package importer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chravel/chravel-import/internal/importer/aiextract"
	"github.com/chravel/chravel-import/internal/importer/datetime"
	"github.com/chravel/chravel-import/internal/importer/dedupe"
	"github.com/chravel/chravel-import/internal/metrics"
	"github.com/chravel/chravel-import/internal/model"
)

var refNow = time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)

type memStorage struct {
	mu      sync.Mutex
	uploads []string
	removed [][]string
}

func (m *memStorage) Upload(ctx context.Context, path string, data []byte, opts aiextract.UploadOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, path)
	return nil
}

func (m *memStorage) PublicURL(path string) string { return "https://objects.example.com/" + path }

func (m *memStorage) Remove(ctx context.Context, paths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, paths)
	return errors.New("remove failures are ignored")
}

type recordingService struct {
	requests []aiextract.Request
	respond  func(req aiextract.Request) (*aiextract.Response, error)
}

func (s *recordingService) Invoke(ctx context.Context, req aiextract.Request) (*aiextract.Response, error) {
	s.requests = append(s.requests, req)
	return s.respond(req)
}

func newTestImporter(svc aiextract.Service, storage aiextract.ObjectStorage) (*Importer, *metrics.Metrics) {
	m := metrics.New()
	return New(Options{
		Normalizer: datetime.New(time.UTC).WithClock(func() time.Time { return refNow }),
		Storage:    storage,
		Service:    svc,
		Timeout:    time.Second,
		Metrics:    m,
		Now:        func() time.Time { return refNow },
	}), m
}

func ok() *bool { b := true; return &b }

const sampleICS = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nBEGIN:VEVENT\r\nUID:abc@example.com\r\nSUMMARY:Team Meeting\r\nDTSTART:20240115T100000Z\r\nDTEND:20240115T120000Z\r\nLOCATION:Room 1\r\nEND:VEVENT\r\nBEGIN:VEVENT\r\nSUMMARY:Offsite\r\nDTSTART;VALUE=DATE:20240125\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"

// Detection Tests

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name, contentType string
		want              model.SourceFormat
		known             bool
	}{
		{"trip.ics", "", model.FormatICS, true},
		{"TRIP.CSV", "", model.FormatCSV, true},
		{"sheet.xls", "", model.FormatExcel, true},
		{"sheet.xlsx", "application/octet-stream", model.FormatExcel, true},
		{"flyer.JPG", "", model.FormatImage, true},
		{"upload", "text/calendar; charset=utf-8", model.FormatICS, true},
		{"upload", "image/heic", model.FormatImage, true},
		{"upload", "application/pdf", model.FormatPDF, true},
		{"notes.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "", false},
	}

	for _, tt := range tests {
		got, known := DetectFormat(tt.name, tt.contentType)
		assert.Equal(t, tt.known, known, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

// Calendar Tests

func TestParseCalendarFile_ICS(t *testing.T) {
	im, m := newTestImporter(nil, nil)

	res := im.ParseCalendarFile(context.Background(), File{Name: "trip.ics", Data: []byte(sampleICS)})
	require.True(t, res.IsValid)
	assert.Equal(t, model.FormatICS, res.SourceFormat)
	require.Len(t, res.Events, 2)
	assert.Equal(t, "Team Meeting", res.Events[0].Title)
	assert.True(t, res.Events[1].IsAllDay)
	assert.Nil(t, res.Confidence)

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.ImportsValid)
	assert.Equal(t, int64(2), snap.ItemsImported)
}

func TestParseCalendarFile_CSV(t *testing.T) {
	im, _ := newTestImporter(nil, nil)

	res := im.ParseCalendarFile(context.Background(), File{
		Name: "events.csv",
		Data: []byte("Date,Event,Location\n2024-03-01,Kickoff,Main Hall\n"),
	})
	require.True(t, res.IsValid)
	require.Len(t, res.Events, 1)

	ev := res.Events[0]
	assert.Equal(t, "Kickoff", ev.Title)
	assert.Equal(t, "Main Hall", ev.Location)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), ev.StartTime)
	assert.True(t, ev.IsAllDay)
	assert.Equal(t, model.FormatCSV, res.SourceFormat)
}

func TestParseCalendarFile_Unsupported(t *testing.T) {
	svc := &recordingService{respond: func(aiextract.Request) (*aiextract.Response, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	storage := &memStorage{}
	im, m := newTestImporter(svc, storage)

	res := im.ParseCalendarFile(context.Background(), File{Name: "notes.docx", Data: []byte{0x50, 0x4b}})
	assert.False(t, res.IsValid)
	assert.Empty(t, res.Events)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Unsupported file type")
	assert.Empty(t, storage.uploads)
	assert.Equal(t, int64(1), m.Snapshot().ImportsInvalid)
}

func TestParseCalendarFile_BadExcel(t *testing.T) {
	im, _ := newTestImporter(nil, nil)

	res := im.ParseCalendarFile(context.Background(), File{Name: "broken.xlsx", Data: []byte("not a zip")})
	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Could not read Excel file")
}

func TestParseCalendarFile_Image(t *testing.T) {
	svc := &recordingService{respond: func(req aiextract.Request) (*aiextract.Response, error) {
		c := 0.6
		return &aiextract.Response{Success: ok(), Events: []aiextract.RawEvent{
			{Title: "Dinner", StartTime: "2024-03-15T19:00:00Z", Confidence: &c},
			{Title: "Museum", StartTime: "someday"},
			{Title: "Beach", StartTime: "2024-03-16"},
		}}, nil
	}}
	storage := &memStorage{}
	im, m := newTestImporter(svc, storage)

	res := im.ParseCalendarFile(context.Background(), File{Name: "flyer.png", Data: []byte{0x89, 'P', 'N', 'G'}})
	require.True(t, res.IsValid)
	assert.Equal(t, model.FormatImage, res.SourceFormat)
	require.Len(t, res.Events, 2)
	assert.Equal(t, []float64{0.6, aiextract.DefaultConfidence}, res.Confidence)
	assert.Equal(t, "imported-1710324000000-0", res.Events[0].UID)
	assert.Equal(t, "imported-1710324000000-1", res.Events[1].UID)
	assert.True(t, res.Events[1].IsAllDay)
	assert.Equal(t, []string{`Event #2: Could not parse start time "someday"`}, res.Errors)

	require.Len(t, svc.requests, 1)
	assert.Equal(t, "image/png", svc.requests[0].FileType)
	assert.Len(t, storage.removed, 1)

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.Uploads)
	assert.Equal(t, int64(1), snap.CleanupFailures)
}

func TestParseTextWithAI_Empty(t *testing.T) {
	svc := &recordingService{respond: func(req aiextract.Request) (*aiextract.Response, error) {
		return &aiextract.Response{Success: ok()}, nil
	}}
	im, _ := newTestImporter(svc, nil)

	res := im.ParseTextWithAI(context.Background(), "nothing planned")
	assert.False(t, res.IsValid)
	assert.Equal(t, []string{"No events found in the text"}, res.Errors)
	assert.Equal(t, "nothing planned", svc.requests[0].MessageText)
}

func TestParseCalendarURL(t *testing.T) {
	svc := &recordingService{respond: func(req aiextract.Request) (*aiextract.Response, error) {
		found := 5
		return &aiextract.Response{Success: ok(), EventsFound: &found, Events: []aiextract.RawEvent{
			{Title: "Concert", StartTime: "2024-07-01T18:00:00Z"},
		}}, nil
	}}
	im, _ := newTestImporter(svc, nil)

	res := im.ParseCalendarURL(context.Background(), "https://venue.example.com")
	require.True(t, res.IsValid)
	assert.Equal(t, model.FormatURL, res.SourceFormat)
	assert.Equal(t, 5, res.EventsFound)
	assert.Len(t, res.Events, 1)

	failing := &recordingService{respond: func(req aiextract.Request) (*aiextract.Response, error) {
		return nil, errors.New("HTTP 500")
	}}
	im, _ = newTestImporter(failing, nil)
	res = im.ParseCalendarURL(context.Background(), "https://venue.example.com")
	assert.False(t, res.IsValid)
	assert.Equal(t, []string{"Failed to scan website: HTTP 500"}, res.Errors)
}

func TestParseICSContent(t *testing.T) {
	im, _ := newTestImporter(nil, nil)

	res := im.ParseICSContent("BEGIN:VEVENT\nSUMMARY:x\nEND:VEVENT")
	assert.False(t, res.IsValid)
	assert.Empty(t, res.Events)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "VCALENDAR")
}

// Agenda Tests

func TestParseAgendaFile_PDFCleanup(t *testing.T) {
	tests := []struct {
		name    string
		respond func(aiextract.Request) (*aiextract.Response, error)
		valid   bool
		wantErr string
	}{
		{
			name: "success",
			respond: func(aiextract.Request) (*aiextract.Response, error) {
				return &aiextract.Response{Success: ok(), Sessions: []aiextract.RawSession{
					{Title: "Keynote", SessionDate: "March 20, 2024", StartTime: "9:00 AM", Speakers: []string{" Ada ", ""}},
				}}, nil
			},
			valid: true,
		},
		{
			name: "error",
			respond: func(aiextract.Request) (*aiextract.Response, error) {
				return nil, errors.New("model timeout")
			},
			wantErr: "AI parsing failed: model timeout",
		},
		{
			name: "panic",
			respond: func(aiextract.Request) (*aiextract.Response, error) {
				panic(errors.New("nil pointer in decoder"))
			},
			wantErr: "nil pointer in decoder",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := &memStorage{}
			im, _ := newTestImporter(&recordingService{respond: tt.respond}, storage)

			res := im.ParseAgendaFile(context.Background(), File{Name: "agenda.pdf", Data: []byte("%PDF-1.7")})
			assert.Equal(t, tt.valid, res.IsValid)
			assert.Equal(t, model.FormatPDF, res.SourceFormat)
			if tt.valid {
				require.Len(t, res.Sessions, 1)
				s := res.Sessions[0]
				assert.Equal(t, "2024-03-20", s.SessionDate)
				assert.Equal(t, "09:00", s.StartTime)
				assert.Equal(t, []string{"Ada"}, s.Speakers)
				assert.Equal(t, []float64{aiextract.DefaultConfidence}, res.Confidence)
			} else {
				assert.Equal(t, []string{tt.wantErr}, res.Errors)
			}

			require.Len(t, storage.uploads, 1)
			require.Len(t, storage.removed, 1)
			assert.Equal(t, []string{storage.uploads[0]}, storage.removed[0])
		})
	}
}

func TestParseAgendaFile_UnknownTypeFallback(t *testing.T) {
	svc := &recordingService{respond: func(req aiextract.Request) (*aiextract.Response, error) {
		return &aiextract.Response{Success: ok(), Sessions: []aiextract.RawSession{{Title: "A"}}}, nil
	}}
	storage := &memStorage{}
	im, _ := newTestImporter(svc, storage)

	res := im.ParseAgendaFile(context.Background(), File{Name: "agenda.rtf", Data: []byte("9am Opening remarks")})
	assert.Equal(t, model.FormatText, res.SourceFormat)
	assert.Equal(t, "9am Opening remarks", svc.requests[0].MessageText)
	assert.Empty(t, storage.uploads)

	res = im.ParseAgendaFile(context.Background(), File{Name: "agenda.pages", Data: []byte{0xff, 0xfe, 0x00}})
	assert.Equal(t, model.FormatPDF, res.SourceFormat)
	assert.NotEmpty(t, svc.requests[1].FileURL)
	assert.Len(t, storage.removed, 1)
}

func TestParseAgendaFile_ICS(t *testing.T) {
	im, _ := newTestImporter(nil, nil)

	res := im.ParseAgendaFile(context.Background(), File{Name: "agenda.ics", Data: []byte(sampleICS)})
	require.True(t, res.IsValid)
	assert.Equal(t, model.FormatICS, res.SourceFormat)
	require.Len(t, res.Sessions, 2)

	assert.Equal(t, model.ParsedAgendaSession{
		Title:       "Team Meeting",
		SessionDate: "2024-01-15",
		StartTime:   "10:00",
		EndTime:     "12:00",
		Location:    "Room 1",
	}, res.Sessions[0])
	assert.Equal(t, "2024-01-25", res.Sessions[1].SessionDate)
	assert.Empty(t, res.Sessions[1].StartTime)
}

func TestParseAgendaText_InvalidResponse(t *testing.T) {
	svc := &recordingService{respond: func(req aiextract.Request) (*aiextract.Response, error) {
		_, err := aiextract.DecodeResponse([]byte(`{"sessions": "soon"}`))
		return nil, err
	}}
	im, _ := newTestImporter(svc, nil)

	res := im.ParseAgendaText(context.Background(), "agenda")
	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "AI parsing failed: invalid response: field sessions")
}

func TestParseAgendaText_BlankTitle(t *testing.T) {
	svc := &recordingService{respond: func(req aiextract.Request) (*aiextract.Response, error) {
		return aiextract.DecodeResponse([]byte(`{"success":true,"sessions":[` +
			`{"title":"   ","session_date":"2024-03-01"},` +
			`{"title":" Keynote ","session_date":"2024-03-01","confidence":0.7}]}`))
	}}
	im, _ := newTestImporter(svc, nil)

	res := im.ParseAgendaText(context.Background(), "agenda")
	require.True(t, res.IsValid)
	require.Len(t, res.Sessions, 1)
	assert.Equal(t, "Keynote", res.Sessions[0].Title)
	assert.Equal(t, []float64{0.7}, res.Confidence)
	assert.Equal(t, []string{"Session #1: Missing title"}, res.Errors)

	svc.respond = func(req aiextract.Request) (*aiextract.Response, error) {
		return aiextract.DecodeResponse([]byte(`{"success":true,"sessions":[{"title":" ","session_date":"2024-03-01"}]}`))
	}
	res = im.ParseAgendaText(context.Background(), "agenda")
	assert.False(t, res.IsValid)
	assert.Empty(t, res.Sessions)
	assert.Contains(t, res.Errors, "Session #1: Missing title")
}

func TestParseTextWithAI_BlankTitle(t *testing.T) {
	svc := &recordingService{respond: func(req aiextract.Request) (*aiextract.Response, error) {
		return &aiextract.Response{Success: ok(), Events: []aiextract.RawEvent{
			{Title: "  ", StartTime: "2024-03-15T19:00:00Z"},
			{Title: "Dinner", StartTime: "2024-03-15T19:00:00Z"},
		}}, nil
	}}
	im, _ := newTestImporter(svc, nil)

	res := im.ParseTextWithAI(context.Background(), "dinner friday")
	require.True(t, res.IsValid)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "Dinner", res.Events[0].Title)
	assert.Equal(t, []string{"Event #1: Missing title"}, res.Errors)
}

// Lineup Tests

func TestParseLineupFile_CSV(t *testing.T) {
	im, _ := newTestImporter(nil, nil)

	res := im.ParseLineupFile(context.Background(), File{
		Name: "lineup.csv",
		Data: []byte("Artist\nJane Doe\njane doe\n  Bob  \n"),
	})
	require.True(t, res.IsValid)
	assert.Equal(t, []string{"Bob", "Jane Doe"}, res.Names)
}

func TestParseLineupText(t *testing.T) {
	svc := &recordingService{respond: func(req aiextract.Request) (*aiextract.Response, error) {
		return &aiextract.Response{Success: ok(), Sessions: []aiextract.RawSession{
			{Title: "Panel", Speakers: []string{"Zed", "amy"}},
			{Title: "Talk", Speakers: []string{"Amy"}},
		}}, nil
	}}
	im, _ := newTestImporter(svc, nil)

	res := im.ParseLineupText(context.Background(), "Panel with Zed and amy")
	require.True(t, res.IsValid)
	assert.Equal(t, []string{"amy", "Zed"}, res.Names)
	assert.Equal(t, model.FormatText, res.SourceFormat)
}

func TestParseLineupURL(t *testing.T) {
	svc := &recordingService{respond: func(req aiextract.Request) (*aiextract.Response, error) {
		found := 4
		return &aiextract.Response{Success: ok(), Names: []string{"B", "A", "a"}, NamesFound: &found}, nil
	}}
	im, _ := newTestImporter(svc, nil)

	res := im.ParseLineupURL(context.Background(), "https://fest.example.com/lineup")
	assert.Equal(t, []string{"A", "B"}, res.Names)
	assert.Equal(t, 4, res.NamesFound)
}

// Dispatch and Duplicate Tests

func TestDispatch(t *testing.T) {
	im, _ := newTestImporter(nil, nil)

	r, err := im.ParseFile(context.Background(), model.KindCalendar, File{Name: "a.ics", Data: []byte(sampleICS)})
	require.NoError(t, err)
	assert.Equal(t, 2, r.ItemCount())
	assert.True(t, r.Valid())

	_, err = im.ParseText(context.Background(), "poster", "x")
	assert.Error(t, err)

	r, err = im.ParseURL(context.Background(), model.KindAgenda, "https://x")
	require.NoError(t, err)
	assert.False(t, r.Valid())
	assert.Equal(t, []string{"Failed to scan website: no extraction service configured"}, r.Problems())
}

func TestFindDuplicateEvents(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	existing := []dedupe.ExistingEvent{{Title: "Team Meeting", StartTime: start, EndTime: end}}

	parsed := []model.ParsedEvent{
		{Title: "TEAM MEETING", StartTime: start, EndTime: end},
		{Title: "Team Meeting", StartTime: start.Add(time.Hour), EndTime: end},
	}

	dups := FindDuplicateEvents(parsed, existing)
	assert.True(t, dups.Has(0))
	assert.False(t, dups.Has(1))
}

func TestFindDuplicateAgendaSessions(t *testing.T) {
	existing := []dedupe.ExistingSession{{Title: "Keynote", SessionDate: "2024-03-20", StartTime: "09:00", Location: "Hall A"}}
	parsed := []model.ParsedAgendaSession{
		{Title: " keynote ", SessionDate: "2024-03-20", StartTime: "09:00", Location: "hall  a"},
		{Title: "Keynote", SessionDate: "2024-03-20", StartTime: "09:00"},
	}

	assert.Equal(t, []int{0}, FindDuplicateAgendaSessions(parsed, existing).Sorted())
}
