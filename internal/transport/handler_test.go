package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/you-humble/mybook/internal/domain"
	filestore "github.com/you-humble/mybook/internal/infra/store/file"
)

type fakeUsecase struct {
	submitID  string
	submitErr error
	statuses  map[string]domain.StatusResponse
	book      string

	gotFiles    []domain.Upload
	gotTimeline domain.Timeline
	gotPrompt   string
}

func (f *fakeUsecase) Submit(ctx context.Context, files []domain.Upload, timeline domain.Timeline, prompt string) (string, error) {
	f.gotFiles = files
	f.gotTimeline = timeline
	f.gotPrompt = prompt
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.submitID, nil
}

func (f *fakeUsecase) GetStatus(ctx context.Context, jobID string) (domain.StatusResponse, error) {
	st, ok := f.statuses[jobID]
	if !ok {
		return domain.StatusResponse{}, domain.ErrJobNotFound
	}
	return st, nil
}

func (f *fakeUsecase) Download(ctx context.Context, jobID string) (filestore.Object, error) {
	st, ok := f.statuses[jobID]
	if !ok {
		return filestore.Object{}, domain.ErrJobNotFound
	}
	if st.Status != domain.StatusCompleted {
		return filestore.Object{}, domain.ErrJobNotReady
	}
	return filestore.Object{
		Content:     io.NopCloser(strings.NewReader(f.book)),
		Size:        int64(len(f.book)),
		ContentType: "text/plain",
	}, nil
}

func newTestServer(uc Usecase) *httptest.Server {
	h := NewHandler(10, uc)
	mux := NewRouter(h).MountRoutes(http.NewServeMux())
	return httptest.NewServer(WithRecover(LogMiddleware(mux)))
}

func multipartBody(t *testing.T, files map[string]string, timeline, prompt string) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fmt.Fprint(part, content)
	}
	if timeline != "" {
		mw.WriteField("timeline", timeline)
	}
	if prompt != "" {
		mw.WriteField("prompt", prompt)
	}
	mw.Close()

	return &body, mw.FormDataContentType()
}

func TestGenerateBook_Accepted(t *testing.T) {
	uc := &fakeUsecase{submitID: "job-123"}
	srv := newTestServer(uc)
	defer srv.Close()

	body, contentType := multipartBody(t,
		map[string]string{"diary.txt": "dear diary"},
		`{"start":"2020-01-01","end":"2020-12-31"}`,
		"Tell my story",
	)

	resp, err := http.Post(srv.URL+"/api/generate-book", contentType, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var parsed domain.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if parsed.JobID != "job-123" || parsed.Status != domain.StatusQueued {
		t.Errorf("response = %+v", parsed)
	}

	if uc.gotPrompt != "Tell my story" {
		t.Errorf("prompt = %q", uc.gotPrompt)
	}
	if uc.gotTimeline.Start != "2020-01-01" || uc.gotTimeline.End != "2020-12-31" {
		t.Errorf("timeline = %+v", uc.gotTimeline)
	}
	if len(uc.gotFiles) != 1 || uc.gotFiles[0].Name != "diary.txt" {
		t.Errorf("files = %+v", uc.gotFiles)
	}
}

func TestGenerateBook_InvalidRequest(t *testing.T) {
	uc := &fakeUsecase{
		submitErr: fmt.Errorf("%w: at least one file is required", domain.ErrInvalidRequest),
	}
	srv := newTestServer(uc)
	defer srv.Close()

	body, contentType := multipartBody(t, nil, `{"start":"2020-01-01","end":"2020-12-31"}`, "go")

	resp, err := http.Post(srv.URL+"/api/generate-book", contentType, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGenerateBook_BadTimelineJSON(t *testing.T) {
	srv := newTestServer(&fakeUsecase{submitID: "x"})
	defer srv.Close()

	body, contentType := multipartBody(t,
		map[string]string{"a.txt": "x"}, "not-json", "go")

	resp, err := http.Post(srv.URL+"/api/generate-book", contentType, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGenerateBook_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(&fakeUsecase{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/generate-book")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestStatus(t *testing.T) {
	uc := &fakeUsecase{statuses: map[string]domain.StatusResponse{
		"j1": {JobID: "j1", Status: domain.StatusProcessing, Progress: 30},
	}}
	srv := newTestServer(uc)
	defer srv.Close()

	t.Run("missing jobId", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/status")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("unknown job", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/status?jobId=nope")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("known job", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/status?jobId=j1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}

		var parsed domain.StatusResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if parsed.Status != domain.StatusProcessing || parsed.Progress != 30 {
			t.Errorf("response = %+v", parsed)
		}
	})
}

func TestDownload(t *testing.T) {
	uc := &fakeUsecase{
		statuses: map[string]domain.StatusResponse{
			"done":    {JobID: "done", Status: domain.StatusCompleted, Progress: 100, Result: "generated-books/book-done.txt"},
			"running": {JobID: "running", Status: domain.StatusProcessing, Progress: 30},
		},
		book: "the finished book",
	}
	srv := newTestServer(uc)
	defer srv.Close()

	t.Run("not ready", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/download?jobId=running")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/download?jobId=nope")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("completed", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/download?jobId=done")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "text/plain" {
			t.Errorf("content type = %s", ct)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(data) != "the finished book" {
			t.Errorf("body = %q", string(data))
		}
	})
}
