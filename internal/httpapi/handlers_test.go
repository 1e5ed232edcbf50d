package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wabot/internal/dispatch"
	"wabot/internal/media"
	"wabot/internal/session"
	"wabot/internal/store/contacts"
	"wabot/internal/store/settings"
	logx "wabot/pkg/logx"
)

type fakeSession struct {
	connect    session.ConnectResult
	connectErr error
	logoutErr  error
	removed    bool
	status     session.Status
}

func (f *fakeSession) Connect(ctx context.Context) (session.ConnectResult, error) {
	return f.connect, f.connectErr
}

func (f *fakeSession) Logout(ctx context.Context, removeCredentials bool) (bool, error) {
	if f.logoutErr != nil {
		return false, f.logoutErr
	}
	f.removed = removeCredentials
	return removeCredentials, nil
}

func (f *fakeSession) GetStatus() session.Status { return f.status }

type fakeSweeper struct {
	result    *dispatch.Result
	err       error
	gotUse    bool
	gotCtxErr error
	reports   map[string]*dispatch.Result
	lastID    string
}

func (f *fakeSweeper) Dispatch(ctx context.Context, useAttachment bool) (*dispatch.Result, error) {
	f.gotUse = useAttachment
	f.gotCtxErr = ctx.Err()
	return f.result, f.err
}

func (f *fakeSweeper) Report(id string) (*dispatch.Result, bool) {
	r, ok := f.reports[id]
	return r, ok
}

func (f *fakeSweeper) LastReport() (*dispatch.Result, bool) {
	return f.Report(f.lastID)
}

type apiFixture struct {
	sess  *fakeSession
	sweep *fakeSweeper
	store contacts.Store
	h     *Handlers
	srv   *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	dir := t.TempDir()

	st, err := contacts.Open(contacts.Config{Driver: "file", Path: filepath.Join(dir, "contacts.csv")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	set := settings.New(filepath.Join(dir, "settings.json"), logx.Nop())
	loc := media.NewLocator(filepath.Join(dir, "media"), logx.Nop())

	f := &apiFixture{
		sess:  &fakeSession{},
		sweep: &fakeSweeper{reports: map[string]*dispatch.Result{}},
		store: st,
	}
	f.h = NewHandlers(f.sess, f.sweep, st, set, loc, logx.Nop())
	s := NewServer(Config{}, f.h, logx.Nop())
	f.srv = httptest.NewServer(s.router())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *apiFixture) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestUploadContacts(t *testing.T) {
	f := newAPIFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "numbers.csv")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	fw.Write([]byte("phone,name\n9876543210,Asha\n9876543210,Asha\n9812345678,NULL\n"))
	mw.Close()

	resp, err := http.Post(f.srv.URL+"/bot/numbers", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got := decode[uploadContactsResponse](t, resp)
	if got.NewContactsAdded != 2 || got.RepeatedContacts != 0 {
		t.Fatalf("added=%d repeated=%d, want 2/0", got.NewContactsAdded, got.RepeatedContacts)
	}

	all, err := f.store.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("stored %d contacts, want 2", len(all))
	}
	if all[1].HasName() {
		t.Fatalf("NULL name should round-trip to empty, got %q", all[1].Name)
	}
}

func TestUploadContactsMissingFile(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := http.Post(f.srv.URL+"/bot/numbers", "multipart/form-data; boundary=x", strings.NewReader("--x--\r\n"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUploadMedia(t *testing.T) {
	f := newAPIFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("media", "banner.png")
	fw.Write([]byte{0x89, 'P', 'N', 'G'})
	mw.Close()

	resp, err := http.Post(f.srv.URL+"/bot/media", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestSetSalutations(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.postJSON(t, "/bot/salutations", salutationsRequest{Salutation: "Hi", Message: "Offer ends soon"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
}

func TestSetSalutationsBadBody(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := http.Post(f.srv.URL+"/bot/salutations", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStartMessagingGuard(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.postJSON(t, "/bot/start", startRequest{Option: "stop"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestStartMessagingNotReady(t *testing.T) {
	f := newAPIFixture(t)
	f.sweep.err = dispatch.ErrNotReady

	resp := f.postJSON(t, "/bot/start", startRequest{Option: "start"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	got := decode[envelope](t, resp)
	if !strings.Contains(got.Message, "/bot/qr") {
		t.Fatalf("message should point at /bot/qr, got %q", got.Message)
	}
}

func TestStartMessagingConflict(t *testing.T) {
	f := newAPIFixture(t)
	f.sweep.err = dispatch.ErrSweepActive

	resp := f.postJSON(t, "/bot/start", startRequest{Option: "start"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestStartMessaging(t *testing.T) {
	f := newAPIFixture(t)
	f.sweep.result = &dispatch.Result{
		ID:     "r1",
		Sent:   3,
		Failed: 1,
		Errors: []dispatch.SendError{{Number: "919812345678", Error: "timed out"}},
	}

	resp := f.postJSON(t, "/bot/start", startRequest{Option: "START", UseImage: true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got := decode[startResponse](t, resp)
	if got.TotalMessagesSent != 3 || got.TotalMessagesFailed != 1 {
		t.Fatalf("sent=%d failed=%d, want 3/1", got.TotalMessagesSent, got.TotalMessagesFailed)
	}
	if len(got.Details) != 1 {
		t.Fatalf("details = %v, want one entry", got.Details)
	}
	if !f.sweep.gotUse {
		t.Fatal("useImage flag not forwarded")
	}
}

func TestStartMessagingSurvivesClientDisconnect(t *testing.T) {
	f := newAPIFixture(t)
	f.sweep.result = &dispatch.Result{ID: "r3", Sent: 2}

	// A request whose connection is already gone: the sweep must still
	// run on a live context instead of aborting mid-campaign.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b, _ := json.Marshal(startRequest{Option: "start"})
	req := httptest.NewRequest(http.MethodPost, "/bot/start", bytes.NewReader(b)).WithContext(ctx)
	rec := httptest.NewRecorder()

	f.h.StartMessaging(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if f.sweep.gotCtxErr != nil {
		t.Fatalf("sweep context already dead: %v", f.sweep.gotCtxErr)
	}
}

func TestStartMessagingNothingToDo(t *testing.T) {
	f := newAPIFixture(t)
	f.sweep.result = &dispatch.Result{ID: "r0"}

	resp := f.postJSON(t, "/bot/start", startRequest{Option: "start"})
	got := decode[startResponse](t, resp)
	if got.Message != "No unsent contacts found" {
		t.Fatalf("message = %q", got.Message)
	}
}

func TestClearData(t *testing.T) {
	f := newAPIFixture(t)

	batch := []contacts.Contact{{Phone: "9876543210"}}
	if _, err := f.store.Merge(context.Background(), batch, false); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := f.store.UpdateStatus(context.Background(), batch, true); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	resp := f.postJSON(t, "/bot/clear", clearRequest{Contacts: true, Media: true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got := decode[clearResponse](t, resp)
	if len(got.Messages) != 2 {
		t.Fatalf("messages = %v, want two entries", got.Messages)
	}

	all, _ := f.store.ReadAll(context.Background())
	if len(all) != 1 || all[0].Sent {
		t.Fatalf("contacts after clear = %+v, want unsent", all)
	}
}

func TestClearDataNothingSelected(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.postJSON(t, "/bot/clear", clearRequest{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestLogout(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.postJSON(t, "/bot/logout", logoutRequest{RemoveAuth: true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got := decode[logoutResponse](t, resp)
	if !got.AuthRemoved {
		t.Fatal("authRemoved = false, want true")
	}
}

func TestLogoutNoSession(t *testing.T) {
	f := newAPIFixture(t)
	f.sess.logoutErr = session.ErrNoSession

	resp := f.postJSON(t, "/bot/logout", logoutRequest{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStatus(t *testing.T) {
	f := newAPIFixture(t)
	f.sess.status = session.Status{Status: "connected", Client: "initialized"}

	resp, err := http.Get(f.srv.URL + "/bot/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	got := decode[session.Status](t, resp)
	if got.Status != "connected" || got.Client != "initialized" {
		t.Fatalf("status = %+v", got)
	}
}

func TestQRPageChallenge(t *testing.T) {
	f := newAPIFixture(t)
	f.sess.connect = session.ConnectResult{QRCode: "2@abc", QRPNG: []byte{0x89, 'P', 'N', 'G'}}

	resp, err := http.Get(f.srv.URL + "/bot/qr")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := readAll(t, resp)
	if !strings.Contains(body, "data:image/png;base64,") {
		t.Fatal("page should embed the QR PNG as a data URL")
	}
	if !strings.Contains(body, `http-equiv="refresh"`) {
		t.Fatal("challenge page should auto-refresh")
	}
}

func TestQRPageAlreadyReady(t *testing.T) {
	f := newAPIFixture(t)
	f.sess.connect = session.ConnectResult{Ready: true}

	resp, err := http.Get(f.srv.URL + "/bot/qr")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body := readAll(t, resp)
	if !strings.Contains(body, "Already authenticated") {
		t.Fatalf("unexpected page: %s", body)
	}
}

func TestQRPageConnectError(t *testing.T) {
	f := newAPIFixture(t)
	f.sess.connectErr = session.ErrConnectTimeout

	resp, err := http.Get(f.srv.URL + "/bot/qr")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}

func TestReports(t *testing.T) {
	f := newAPIFixture(t)
	rep := &dispatch.Result{ID: "abc", Sent: 2, StartedAt: time.Now(), DoneAt: time.Now()}
	f.sweep.reports["abc"] = rep
	f.sweep.lastID = "abc"

	resp, err := http.Get(f.srv.URL + "/bot/report/abc")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	got := decode[dispatch.Result](t, resp)
	if got.ID != "abc" || got.Sent != 2 {
		t.Fatalf("report = %+v", got)
	}

	resp, err = http.Get(f.srv.URL + "/bot/report")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	got = decode[dispatch.Result](t, resp)
	if got.ID != "abc" {
		t.Fatalf("last report = %+v", got)
	}

	resp, err = http.Get(f.srv.URL + "/bot/report/missing")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return buf.String()
}
