package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wudi/rxverify/forensics"
	"github.com/wudi/rxverify/ocr"
	"github.com/wudi/rxverify/reference"
	"github.com/wudi/rxverify/rx"
	"github.com/wudi/rxverify/store"
	"github.com/wudi/rxverify/verify"
)

const prescription = `Dr. John Smith
License Number: MD12345
Patient: Jane Doe
Date: 01/02/2024
Medication: Warfarin 5mg
Aspirin 100mg
Take once daily`

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fixture struct {
	table   *reference.Table
	history *store.Memory
	server  *Server
}

func newFixture(t *testing.T, engine ocr.Engine, opts ...Option) fixture {
	t.Helper()
	table := reference.NewTable()
	if err := table.AddDoctor(context.Background(), rx.Doctor{LicenseNumber: "MD12345", Name: "John Smith", Specialty: "Cardiology", Status: "active"}); err != nil {
		t.Fatalf("seed doctor: %v", err)
	}
	history := store.NewMemory()
	zero := forensics.DetectorFunc(func(*image.Gray) (float64, error) { return 0, nil })
	v := verify.New(
		verify.WithOCR(engine),
		verify.WithReference(table, table),
		verify.WithLicenseRegistry(table),
		verify.WithHistory(history),
		verify.WithIDGenerator(func() string { return "ver-1" }),
		verify.WithClock(func() time.Time { return time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC) }),
		verify.WithTamperEngine(forensics.NewEngine(forensics.DefaultConfig(),
			forensics.WithDetector(forensics.Noise, zero),
			forensics.WithDetector(forensics.Alignment, zero),
			forensics.WithDetector(forensics.Compression, zero),
			forensics.WithDetector(forensics.Font, zero),
		)),
	)
	base := []Option{WithHistory(history), WithDoctorWriter(table), WithFindingWriter(table)}
	return fixture{table: table, history: history, server: New(v, append(base, opts...)...)}
}

func textEngine(text string) ocr.Engine {
	return ocr.EngineFunc(func(context.Context, ocr.Input) (ocr.Result, error) {
		return ocr.Result{PlainText: text}, nil
	})
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func upload(t *testing.T, target, field, name string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, textEngine(prescription))
	rec := serve(f.server, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decode(t, rec); body["status"] != "ok" || body["history"] != true {
		t.Fatalf("unexpected health: %v", body)
	}
}

func TestVerifyUpload(t *testing.T) {
	f := newFixture(t, textEngine(prescription))
	for _, path := range []string{"/api/verify", "/api/v1/verify"} {
		rec := serve(f.server, upload(t, path, "file", "rx.png", pngBytes(t, 64, 48)))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d body=%s", path, rec.Code, rec.Body.String())
		}
		body := decode(t, rec)
		if body["status"] != "success" {
			t.Fatalf("%s: unexpected body %v", path, body)
		}
		data := body["data"].(map[string]any)
		drugs := data["drug_analysis"].(map[string]any)
		if drugs["risk_level"] != string(rx.RiskHigh) {
			t.Fatalf("%s: risk = %v", path, drugs["risk_level"])
		}
		doctor := data["doctor_verification"].(map[string]any)
		if doctor["is_valid"] != true {
			t.Fatalf("%s: doctor = %v", path, doctor)
		}
		if meta := body["meta"].(map[string]any); meta["id"] != "ver-1" || meta["report_digest"] == "" {
			t.Fatalf("%s: meta = %v", path, meta)
		}
	}
}

func TestVerifyHTML(t *testing.T) {
	f := newFixture(t, textEngine(prescription))
	rec := serve(f.server, upload(t, "/api/v1/verify?format=html", "file", "rx.png", pngBytes(t, 64, 48)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "<h1>Prescription verification report</h1>") {
		t.Fatalf("unexpected html: %s", rec.Body.String())
	}
}

func TestVerifyRejectsBadUploads(t *testing.T) {
	f := newFixture(t, textEngine(prescription), WithMaxUploadBytes(2048))

	rec := serve(f.server, upload(t, "/api/verify", "document", "rx.png", pngBytes(t, 8, 8)))
	if rec.Code != http.StatusBadRequest || decode(t, rec)["error"] != "No file provided" {
		t.Fatalf("missing field: %d %s", rec.Code, rec.Body.String())
	}

	big := bytes.Repeat([]byte{0xff}, 8192)
	rec = serve(f.server, upload(t, "/api/verify", "file", "big.png", big))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized upload: %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(f.server, upload(t, "/api/verify", "file", "notes.txt", []byte("hello")))
	body := decode(t, rec)
	if rec.Code != http.StatusBadRequest || !strings.HasPrefix(body["error"].(string), "Error opening image") {
		t.Fatalf("unreadable upload: %d %v", rec.Code, body)
	}
	if !strings.Contains(body["details"].(string), "WEBP") {
		t.Fatalf("expected format hint, got %v", body["details"])
	}
}

func TestVerifyMapsDependencyErrors(t *testing.T) {
	f := newFixture(t, nil)
	rec := serve(f.server, upload(t, "/api/verify", "file", "rx.png", pngBytes(t, 16, 16)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if body := decode(t, rec); !strings.Contains(body["details"].(string), "Tesseract") {
		t.Fatalf("unexpected body: %v", body)
	}

	f = newFixture(t, textEngine(" "))
	rec = serve(f.server, upload(t, "/api/verify", "file", "rx.png", pngBytes(t, 16, 16)))
	if rec.Code != http.StatusBadRequest || decode(t, rec)["error"] != "No text could be extracted from the image." {
		t.Fatalf("blank text: %d %s", rec.Code, rec.Body.String())
	}
}

func TestVerifyRecoversPanics(t *testing.T) {
	boom := ocr.EngineFunc(func(context.Context, ocr.Input) (ocr.Result, error) { panic("engine exploded") })
	f := newFixture(t, boom)
	rec := serve(f.server, upload(t, "/api/verify", "file", "rx.png", pngBytes(t, 16, 16)))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode(t, rec)
	if body["error"] != msgUnexpected || body["details"] != "engine exploded" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestStoredVerifications(t *testing.T) {
	f := newFixture(t, textEngine(prescription))
	if rec := serve(f.server, upload(t, "/api/verify", "file", "rx.png", pngBytes(t, 64, 48))); rec.Code != http.StatusOK {
		t.Fatalf("verify: %d %s", rec.Code, rec.Body.String())
	}

	rec := serve(f.server, httptest.NewRequest(http.MethodGet, "/api/v1/verifications/ver-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d %s", rec.Code, rec.Body.String())
	}
	if data := decode(t, rec)["data"].(map[string]any); data["id"] != "ver-1" {
		t.Fatalf("unexpected envelope: %v", data)
	}

	rec = serve(f.server, httptest.NewRequest(http.MethodGet, "/api/v1/verifications/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing: %d", rec.Code)
	}

	rec = serve(f.server, httptest.NewRequest(http.MethodGet, "/api/v1/history?license=MD12345&limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("history: %d %s", rec.Code, rec.Body.String())
	}
	if data := decode(t, rec)["data"].([]any); len(data) != 1 {
		t.Fatalf("history = %v", data)
	}

	rec = serve(f.server, httptest.NewRequest(http.MethodGet, "/api/v1/history", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("history without license: %d", rec.Code)
	}
	rec = serve(f.server, httptest.NewRequest(http.MethodGet, "/api/v1/history?license=MD12345&limit=x", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("history with bad limit: %d", rec.Code)
	}
}

func TestHistoryNotConfigured(t *testing.T) {
	v := verify.New(verify.WithOCR(textEngine(prescription)))
	s := New(v)
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/history?license=MD12345", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	rec = serve(s, jsonRequest(http.MethodPost, "/api/v1/doctors", `{"license_number":"A1","name":"Ann Lee"}`))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("doctors status = %d", rec.Code)
	}
}

func TestDoctorEndpoints(t *testing.T) {
	f := newFixture(t, textEngine(prescription))
	ctx := context.Background()

	rec := serve(f.server, jsonRequest(http.MethodPost, "/api/v1/doctors", `{"license_number":"MD777","name":"Ann Lee","specialty":"Dermatology"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: %d %s", rec.Code, rec.Body.String())
	}
	d, found, err := f.table.FindByLicense(ctx, "MD777")
	if err != nil || !found || d.Status != "active" {
		t.Fatalf("stored doctor = %+v found=%t err=%v", d, found, err)
	}

	rec = serve(f.server, jsonRequest(http.MethodPost, "/api/v1/doctors", `{"license_number":"MD777","name":"Ann Lee"}`))
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: %d", rec.Code)
	}
	rec = serve(f.server, jsonRequest(http.MethodPost, "/api/v1/doctors", `{"license_number":"MD778"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing name: %d", rec.Code)
	}

	rec = serve(f.server, jsonRequest(http.MethodPatch, "/api/v1/doctors/MD777/status", `{"status":"suspended"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	if d, _, _ := f.table.FindByLicense(ctx, "MD777"); d.Status != "suspended" {
		t.Fatalf("status not updated: %+v", d)
	}
	rec = serve(f.server, jsonRequest(http.MethodPatch, "/api/v1/doctors/MD777/status", `{"status":"suspended"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("unchanged status: %d %s", rec.Code, rec.Body.String())
	}
	rec = serve(f.server, jsonRequest(http.MethodPatch, "/api/v1/doctors/NOPE/status", `{"status":"active"}`))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown license: %d", rec.Code)
	}
}

func TestReferenceEndpoints(t *testing.T) {
	f := newFixture(t, textEngine(prescription))
	ctx := context.Background()

	rec := serve(f.server, jsonRequest(http.MethodPost, "/api/v1/interactions", `{"drug_a":"Warfarin","drug_b":"Aspirin","severity":"Severe","description":"Bleeding"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("interaction: %d %s", rec.Code, rec.Body.String())
	}
	in, found, err := f.table.LookupInteraction(ctx, "Aspirin", "Warfarin")
	if err != nil || !found || in.Severity != rx.SeveritySevere {
		t.Fatalf("stored interaction = %+v found=%t err=%v", in, found, err)
	}

	rec = serve(f.server, jsonRequest(http.MethodPost, "/api/v1/contraindications", `{"drug":"Aspirin","conditions":["ulcer"],"severity":"moderate"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("contraindication: %d %s", rec.Code, rec.Body.String())
	}
	ci, found, err := f.table.LookupContraindication(ctx, "Aspirin")
	if err != nil || !found || len(ci.Conditions) != 1 {
		t.Fatalf("stored contraindication = %+v found=%t err=%v", ci, found, err)
	}

	rec = serve(f.server, jsonRequest(http.MethodPost, "/api/v1/contraindications", `{"drug":"Aspirin","conditions":[]}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty conditions: %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, textEngine(prescription))
	rec := serve(f.server, httptest.NewRequest(http.MethodOptions, "/api/verify", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin = %q", got)
	}
}
