package service

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/mux"
)

type recordedUpload struct {
	userID      string
	filename    string
	contentType string
	body        []byte
}

// fakeService imitates the processing service's three endpoints.
type fakeService struct {
	srv *httptest.Server

	mu          sync.Mutex
	uploadCode  int
	uploads     []recordedUpload
	statuses    []string
	statusCalls int
	statusIDs   []string
	resultCode  int
	result      []byte
	resultIDs   []string
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	f := &fakeService{
		uploadCode: http.StatusOK,
		statuses:   []string{`{"status":"Running"}`},
		resultCode: http.StatusOK,
		result:     []byte("result"),
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/videos").Subrouter()
	api.HandleFunc("/user/original", f.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/status/{jobId}", f.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/user/result/{jobId}", f.handleResult).Methods(http.MethodGet)

	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeService) root() string {
	return f.srv.URL + "/videos/"
}

func (f *fakeService) setStatuses(bodies ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = bodies
}

func (f *fakeService) setUploadCode(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCode = code
}

func (f *fakeService) setResult(code int, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resultCode = code
	f.result = body
}

func (f *fakeService) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("video")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()
	body, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, recordedUpload{
		userID:      r.FormValue("userId"),
		filename:    header.Filename,
		contentType: header.Header.Get("Content-Type"),
		body:        body,
	})
	w.WriteHeader(f.uploadCode)
	_, _ = w.Write([]byte("uploaded"))
}

func (f *fakeService) handleStatus(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := mux.Vars(r)["jobId"]
	if len(f.statusIDs) == 0 || f.statusIDs[len(f.statusIDs)-1] != id {
		f.statusIDs = append(f.statusIDs, id)
	}

	// the last scripted body repeats once the script is exhausted
	body := f.statuses[len(f.statuses)-1]
	if f.statusCalls < len(f.statuses) {
		body = f.statuses[f.statusCalls]
	}
	f.statusCalls++

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func (f *fakeService) handleResult(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resultIDs = append(f.resultIDs, mux.Vars(r)["jobId"])
	w.Header().Set("Content-Type", "video/mp4")
	w.WriteHeader(f.resultCode)
	_, _ = w.Write(f.result)
}

func (f *fakeService) uploadsSnapshot() []recordedUpload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedUpload(nil), f.uploads...)
}

func (f *fakeService) statusCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

// statusJobIDs lists the job ids polled, collapsing consecutive repeats.
func (f *fakeService) statusJobIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.statusIDs...)
}

func (f *fakeService) resultJobIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.resultIDs...)
}
