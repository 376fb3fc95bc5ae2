package imports

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/rpattn/orderimport/internal/auth"
	"github.com/rpattn/orderimport/internal/domain"
)

func newTestServer(t *testing.T, f *fixture) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(auth.Middleware(NewHTTPHandler(f.svc, nil)))
	t.Cleanup(server.Close)
	return server
}

func doRequest(t *testing.T, method, url, contentType string, body *bytes.Buffer, userID int64) *http.Response {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if userID > 0 {
		req.Header.Set(auth.UserIDHeader, strconv.FormatInt(userID, 10))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func multipartBody(t *testing.T, fileName string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func decodeBody(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHTTPInitiateAndUpload(t *testing.T) {
	f := newFixture(t, requiredOrderRule)
	server := newTestServer(t, f)

	payload := bytes.NewBufferString(`{"client_id": 1, "field_mapping_id": 10, "custom_name": "May"}`)
	resp := doRequest(t, http.MethodPost, server.URL+"/", "application/json", payload, testUserID)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var record domain.ImportRecord
	decodeBody(t, resp, &record)
	if record.Status != domain.ImportStatusInitiated || record.UserID != testUserID {
		t.Fatalf("unexpected record: %+v", record)
	}

	body, contentType := multipartBody(t, "orders.csv", []byte(partialCSV))
	resp = doRequest(t, http.MethodPost, server.URL+"/"+strconv.FormatInt(record.ID, 10)+"/file", contentType, body, testUserID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result Result
	decodeBody(t, resp, &result)
	if result.Statistics.TotalRows != 3 || result.Record.Status != domain.ImportStatusPreviewReady {
		t.Fatalf("unexpected result: %+v", result)
	}

	resp = doRequest(t, http.MethodGet, server.URL+"/"+strconv.FormatInt(record.ID, 10)+"/results/errors", "", nil, testUserID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var page ResultPage
	decodeBody(t, resp, &page)
	if page.Total != 1 || page.Kind != ResultErrors {
		t.Fatalf("unexpected page: %+v", page)
	}

	resp = doRequest(t, http.MethodGet, server.URL+"/?status=preview_ready", "", nil, testUserID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var list Page
	decodeBody(t, resp, &list)
	if list.Total != 1 {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestHTTPDecodeFailureReturnsRecord(t *testing.T) {
	f := newFixture(t, requiredOrderRule)
	server := newTestServer(t, f)
	record := f.initiate(t)

	body, contentType := multipartBody(t, "logo.png", []byte{0x89, 'P', 'N', 'G', 0x00, 0x00})
	resp := doRequest(t, http.MethodPost, server.URL+"/"+strconv.FormatInt(record.ID, 10)+"/file", contentType, body, testUserID)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}

	var payload errorBody
	decodeBody(t, resp, &payload)
	if !strings.Contains(payload.Error, "failed to parse file") {
		t.Fatalf("expected parse message, got %q", payload.Error)
	}
	if payload.Import == nil || payload.Import.Status != domain.ImportStatusProcessingFailed {
		t.Fatalf("expected failed record in body, got %+v", payload.Import)
	}
}

func TestHTTPErrorStatuses(t *testing.T) {
	f := newFixture(t, requiredOrderRule)
	server := newTestServer(t, f)
	record := f.initiate(t)
	id := strconv.FormatInt(record.ID, 10)

	cases := []struct {
		name        string
		method      string
		path        string
		contentType string
		body        string
		user        int64
		want        int
	}{
		{"missing user", http.MethodGet, "/" + id, "", "", 0, http.StatusUnauthorized},
		{"unknown import", http.MethodGet, "/999", "", "", testUserID, http.StatusNotFound},
		{"other user", http.MethodGet, "/" + id, "", "", testUserID + 1, http.StatusForbidden},
		{"bad id", http.MethodGet, "/abc", "", "", testUserID, http.StatusBadRequest},
		{"mapping mismatch", http.MethodPost, "/", "application/json", `{"client_id": 1, "field_mapping_id": 20}`, testUserID, http.StatusUnprocessableEntity},
		{"unknown field", http.MethodPost, "/", "application/json", `{"client": 1}`, testUserID, http.StatusBadRequest},
		{"not ready", http.MethodPost, "/" + id + "/process", "", "", testUserID, http.StatusBadRequest},
		{"results before processing", http.MethodGet, "/" + id + "/results/processed", "", "", testUserID, http.StatusBadRequest},
		{"bad sort", http.MethodGet, "/?sort=secret", "", "", testUserID, http.StatusBadRequest},
		{"bad status", http.MethodGet, "/?status=done", "", "", testUserID, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, tc.method, server.URL+tc.path, tc.contentType, bytes.NewBufferString(tc.body), tc.user)
			if resp.StatusCode != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.StatusCode)
			}
		})
	}
}

func TestHTTPUploadRequiresFile(t *testing.T) {
	f := newFixture(t, requiredOrderRule)
	server := newTestServer(t, f)
	record := f.initiate(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	_ = writer.WriteField("note", "no file here")
	_ = writer.Close()

	resp := doRequest(t, http.MethodPost, server.URL+"/"+strconv.FormatInt(record.ID, 10)+"/file", writer.FormDataContentType(), body, testUserID)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if got := f.repo.record(t, record.ID).Status; got != domain.ImportStatusInitiated {
		t.Fatalf("status changed to %s", got)
	}
}
