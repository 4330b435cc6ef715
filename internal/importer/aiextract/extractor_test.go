package aiextract

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/chravel/chravel-import/internal/errors"
	"github.com/chravel/chravel-import/internal/model"
)

type fakeStorage struct {
	mu        sync.Mutex
	uploadErr error
	removeErr error
	uploads   []string
	opts      []UploadOptions
	removed   [][]string
}

func (f *fakeStorage) Upload(ctx context.Context, path string, data []byte, opts UploadOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads = append(f.uploads, path)
	f.opts = append(f.opts, opts)
	return nil
}

func (f *fakeStorage) PublicURL(path string) string {
	return "https://objects.example.com/" + path
}

func (f *fakeStorage) Remove(ctx context.Context, paths []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, paths)
	return f.removeErr
}

func okResponse() *Response {
	ok := true
	return &Response{Success: &ok, Sessions: []RawSession{{Title: "Keynote"}}}
}

var refNow = time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)

func TestUploadPath(t *testing.T) {
	p := UploadPath(model.KindAgenda, "Program.PDF", refNow)
	assert.Regexp(t, regexp.MustCompile(`^agenda-imports/1710324000000-[0-9a-f-]{36}\.pdf$`), p)
	assert.NotEqual(t, p, UploadPath(model.KindAgenda, "Program.PDF", refNow))
	assert.Regexp(t, `\.bin$`, UploadPath(model.KindCalendar, "noext", refNow))
}

func TestExtractFile_RemovesUploadExactlyOnce(t *testing.T) {
	tests := []struct {
		name    string
		service ServiceFunc
		wantErr string
	}{
		{
			name: "success",
			service: func(ctx context.Context, req Request) (*Response, error) {
				return okResponse(), nil
			},
		},
		{
			name: "service error",
			service: func(ctx context.Context, req Request) (*Response, error) {
				return nil, errors.New("model overloaded")
			},
			wantErr: "AI parsing failed: model overloaded",
		},
		{
			name: "service reports failure",
			service: func(ctx context.Context, req Request) (*Response, error) {
				failed := false
				return &Response{Success: &failed, Error: "could not read document"}, nil
			},
			wantErr: "AI parsing failed: could not read document",
		},
		{
			name: "failure without message",
			service: func(ctx context.Context, req Request) (*Response, error) {
				failed := false
				return &Response{Success: &failed}, nil
			},
			wantErr: "AI parsing failed: Unknown error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := &fakeStorage{removeErr: errors.New("ignored")}
			ex := NewExtractor(storage, tt.service, time.Second, nil).WithClock(func() time.Time { return refNow })

			resp, err := ex.ExtractFile(context.Background(), model.KindAgenda, "agenda.pdf", "application/pdf", []byte("%PDF"))
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Len(t, resp.Sessions, 1)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, apperrors.UserMessage(err))
			}

			require.Len(t, storage.uploads, 1)
			require.Len(t, storage.removed, 1)
			assert.Equal(t, []string{storage.uploads[0]}, storage.removed[0])
			assert.Equal(t, UploadOptions{ContentType: "application/pdf", Upsert: false}, storage.opts[0])
		})
	}
}

func TestExtractFile_RemovesUploadOnPanic(t *testing.T) {
	storage := &fakeStorage{}
	ex := NewExtractor(storage, ServiceFunc(func(ctx context.Context, req Request) (*Response, error) {
		panic("decoder exploded")
	}), time.Second, nil)

	assert.Panics(t, func() {
		ex.ExtractFile(context.Background(), model.KindAgenda, "a.png", "image/png", []byte{1})
	})
	assert.Len(t, storage.removed, 1)
}

func TestExtractFile_RequestShape(t *testing.T) {
	storage := &fakeStorage{}
	var got Request
	ex := NewExtractor(storage, ServiceFunc(func(ctx context.Context, req Request) (*Response, error) {
		got = req
		return okResponse(), nil
	}), time.Second, nil)

	_, err := ex.ExtractFile(context.Background(), model.KindCalendar, "flyer.jpg", "image/jpeg", []byte{1})
	require.NoError(t, err)

	assert.Equal(t, "https://objects.example.com/"+storage.uploads[0], got.FileURL)
	assert.Equal(t, "image/jpeg", got.FileType)
	assert.Equal(t, model.KindCalendar, got.ExtractionType)
	assert.Contains(t, got.MessageText, "calendar events from this image")
	assert.Empty(t, got.URL)
}

func TestExtractFile_UploadFailure(t *testing.T) {
	storage := &fakeStorage{uploadErr: errors.New("bucket quota exceeded")}
	called := false
	ex := NewExtractor(storage, ServiceFunc(func(ctx context.Context, req Request) (*Response, error) {
		called = true
		return okResponse(), nil
	}), time.Second, nil)

	_, err := ex.ExtractFile(context.Background(), model.KindAgenda, "a.pdf", "application/pdf", nil)
	require.Error(t, err)
	assert.Equal(t, "Failed to upload file: bucket quota exceeded", apperrors.UserMessage(err))
	assert.True(t, errors.Is(err, apperrors.ErrUploadFailed))
	assert.False(t, called)
	assert.Empty(t, storage.removed)
}

func TestExtractURL(t *testing.T) {
	var got Request
	ex := NewExtractor(nil, ServiceFunc(func(ctx context.Context, req Request) (*Response, error) {
		got = req
		ok, found := true, 12
		return &Response{Success: &ok, Sessions: []RawSession{{Title: "A"}}, SessionsFound: &found}, nil
	}), time.Second, nil)

	resp, err := ex.ExtractURL(context.Background(), model.KindAgenda, " https://fest.example.com/agenda ")
	require.NoError(t, err)
	assert.Equal(t, "https://fest.example.com/agenda", got.URL)
	assert.Equal(t, 12, resp.Found(model.KindAgenda))

	failing := NewExtractor(nil, ServiceFunc(func(ctx context.Context, req Request) (*Response, error) {
		return nil, errors.New("HTTP 403")
	}), time.Second, nil)
	_, err = failing.ExtractURL(context.Background(), model.KindAgenda, "https://fest.example.com")
	require.Error(t, err)
	assert.Equal(t, "Failed to scan website: HTTP 403", apperrors.UserMessage(err))
}

func TestExtractText(t *testing.T) {
	var got Request
	ex := NewExtractor(nil, ServiceFunc(func(ctx context.Context, req Request) (*Response, error) {
		got = req
		return okResponse(), nil
	}), time.Second, nil)

	_, err := ex.ExtractText(context.Background(), model.KindLineup, "Jane Doe, Bob")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe, Bob", got.MessageText)
	assert.Empty(t, got.FileURL)

	_, err = ex.ExtractText(context.Background(), model.KindLineup, "   ")
	require.Error(t, err)
	assert.Contains(t, apperrors.UserMessage(err), "AI parsing failed: invalid request")
}

func TestExtractor_Timeout(t *testing.T) {
	ex := NewExtractor(nil, ServiceFunc(func(ctx context.Context, req Request) (*Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), 20*time.Millisecond, nil)

	_, err := ex.ExtractText(context.Background(), model.KindCalendar, "dinner friday 7pm")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExtractor_NotConfigured(t *testing.T) {
	ex := NewExtractor(nil, nil, 0, nil)

	_, err := ex.ExtractFile(context.Background(), model.KindAgenda, "a.pdf", "application/pdf", nil)
	assert.Equal(t, "Failed to upload file: no object storage configured", apperrors.UserMessage(err))

	_, err = ex.ExtractText(context.Background(), model.KindAgenda, "x")
	assert.Equal(t, "AI parsing failed: no extraction service configured", apperrors.UserMessage(err))
}

func TestRateLimited(t *testing.T) {
	calls := 0
	svc := RateLimited(ServiceFunc(func(ctx context.Context, req Request) (*Response, error) {
		calls++
		return okResponse(), nil
	}), 0.001, 1)

	_, err := svc.Invoke(context.Background(), Request{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = svc.Invoke(ctx, Request{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrRateLimited))
	assert.Equal(t, 1, calls)
}
