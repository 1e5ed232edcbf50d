package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"wabot/internal/dispatch"
	"wabot/internal/media"
	"wabot/internal/session"
	"wabot/internal/store/contacts"
	"wabot/internal/store/settings"
	logx "wabot/pkg/logx"
)

// SessionControl is the slice of the session manager the handlers need.
type SessionControl interface {
	Connect(ctx context.Context) (session.ConnectResult, error)
	Logout(ctx context.Context, removeCredentials bool) (bool, error)
	GetStatus() session.Status
}

// Sweeper runs dispatch sweeps and serves their reports.
type Sweeper interface {
	Dispatch(ctx context.Context, useAttachment bool) (*dispatch.Result, error)
	Report(id string) (*dispatch.Result, bool)
	LastReport() (*dispatch.Result, bool)
}

// Handlers implements the /bot endpoints.
type Handlers struct {
	session  SessionControl
	sweeper  Sweeper
	contacts contacts.Store
	settings *settings.Store
	media    *media.Locator
	log      logx.Logger
}

func NewHandlers(sc SessionControl, sw Sweeper, cs contacts.Store, st *settings.Store, ml *media.Locator, log logx.Logger) *Handlers {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handlers{session: sc, sweeper: sw, contacts: cs, settings: st, media: ml, log: log}
}

type envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, envelope{Status: code, Message: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// Root returns a small service banner.
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "wabot",
		"status":  http.StatusOK,
	})
}

// QR drives connection establishment. It responds with an HTML page:
// either the QR challenge to scan, or a notice that the session is
// already authenticated.
func (h *Handlers) QR(w http.ResponseWriter, r *http.Request) {
	res, err := h.session.Connect(r.Context())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	switch {
	case err != nil:
		h.log.Error("connect failed", logx.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(renderErrorPage(err)))
	case res.Ready:
		_, _ = w.Write([]byte(renderReadyPage()))
	default:
		dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(res.QRPNG)
		_, _ = w.Write([]byte(renderQRPage(dataURL)))
	}
}

type uploadContactsResponse struct {
	Status           int    `json:"status"`
	Message          string `json:"message"`
	NewContactsAdded int    `json:"newContactsAdded"`
	RepeatedContacts int    `json:"repeatedContacts"`
}

// UploadContacts ingests a CSV of phone numbers (multipart field "file")
// and merges it into the contact store.
func (h *Handlers) UploadContacts(w http.ResponseWriter, r *http.Request) {
	f, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no contact file uploaded")
		return
	}
	defer f.Close()

	batch, err := contacts.ParseImport(f)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not parse contact file")
		return
	}
	if len(batch) == 0 {
		writeError(w, http.StatusBadRequest, "contact file contains no phone numbers")
		return
	}

	res, err := h.contacts.Merge(r.Context(), batch, false)
	if err != nil {
		h.log.Error("contact merge failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to store contacts")
		return
	}

	h.log.Info("contacts imported",
		logx.Int("added", res.Added), logx.Int("repeated", res.Repeated))
	writeJSON(w, http.StatusOK, uploadContactsResponse{
		Status:           http.StatusOK,
		Message:          "Contacts processed successfully",
		NewContactsAdded: res.Added,
		RepeatedContacts: res.Repeated,
	})
}

// UploadMedia stores an attachment (multipart field "media"); it
// replaces any previously stored file of the same type.
func (h *Handlers) UploadMedia(w http.ResponseWriter, r *http.Request) {
	f, hdr, err := r.FormFile("media")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no media file uploaded")
		return
	}
	defer f.Close()

	name, err := h.media.Save(hdr.Filename, f)
	if err != nil {
		h.log.Error("media save failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to store media")
		return
	}

	h.log.Info("media stored", logx.String("file", name))
	writeJSON(w, http.StatusOK, envelope{
		Status:  http.StatusOK,
		Message: "Media uploaded successfully",
	})
}

type salutationsRequest struct {
	Salutation string `json:"salutation"`
	Message    string `json:"message"`
}

// SetSalutations replaces the whole settings document.
func (h *Handlers) SetSalutations(w http.ResponseWriter, r *http.Request) {
	var req salutationsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !h.settings.Write(req.Salutation, req.Message) {
		writeError(w, http.StatusInternalServerError, "failed to save salutations")
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		Status:  http.StatusCreated,
		Message: "Salutations and message received successfully",
	})
}

type startRequest struct {
	Option   string `json:"option"`
	UseImage bool   `json:"useImage"`
}

type startResponse struct {
	Status              int                  `json:"status"`
	Message             string               `json:"message"`
	TotalMessagesSent   int                  `json:"totalMessagesSent"`
	TotalMessagesFailed int                  `json:"totalMessagesFailed"`
	Details             []dispatch.SendError `json:"details,omitempty"`
	ReportID            string               `json:"reportId,omitempty"`
}

// StartMessaging triggers one dispatch sweep over the unsent contacts.
func (h *Handlers) StartMessaging(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !strings.EqualFold(req.Option, "start") {
		writeError(w, http.StatusForbidden, "Not permitted to start")
		return
	}

	// A sweep paces seconds per contact; large campaigns outlive both the
	// connection and the server's write deadline. Run the sweep detached
	// from the request context and lift the deadline so the report can
	// still be written once the sweep finishes.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	res, err := h.sweeper.Dispatch(context.WithoutCancel(r.Context()), req.UseImage)
	switch {
	case errors.Is(err, dispatch.ErrNotReady):
		writeError(w, http.StatusBadRequest,
			"WhatsApp session is not ready. Visit /bot/qr and scan the QR code first.")
		return
	case errors.Is(err, dispatch.ErrSweepActive):
		writeError(w, http.StatusConflict, "A messaging run is already in progress")
		return
	case err != nil:
		h.log.Error("dispatch failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "messaging run failed")
		return
	}

	msg := "Messages processed"
	if res.Sent == 0 && res.Failed == 0 {
		msg = "No unsent contacts found"
	}
	writeJSON(w, http.StatusOK, startResponse{
		Status:              http.StatusOK,
		Message:             msg,
		TotalMessagesSent:   res.Sent,
		TotalMessagesFailed: res.Failed,
		Details:             res.Errors,
		ReportID:            res.ID,
	})
}

type clearRequest struct {
	Contacts bool `json:"contacts"`
	Media    bool `json:"media"`
}

type clearResponse struct {
	Status   int      `json:"status"`
	Messages []string `json:"messages"`
}

// ClearData wipes the contact statuses and/or stored media on demand.
func (h *Handlers) ClearData(w http.ResponseWriter, r *http.Request) {
	var req clearRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.Contacts && !req.Media {
		writeError(w, http.StatusBadRequest, "nothing selected to clear")
		return
	}

	var msgs []string
	code := http.StatusOK
	if req.Contacts {
		if err := h.contacts.Reset(r.Context(), false); err != nil {
			h.log.Error("contact reset failed", logx.Err(err))
			msgs = append(msgs, "Failed to reset contact statuses")
			code = http.StatusInternalServerError
		} else {
			msgs = append(msgs, "All contacts marked as unsent")
		}
	}
	if req.Media {
		n, err := h.media.Purge()
		if err != nil {
			h.log.Error("media purge failed", logx.Err(err))
			msgs = append(msgs, "Failed to delete media files")
			code = http.StatusInternalServerError
		} else if n == 0 {
			msgs = append(msgs, "No media files to delete")
		} else {
			msgs = append(msgs, "Media files deleted")
		}
	}
	writeJSON(w, code, clearResponse{Status: code, Messages: msgs})
}

type logoutRequest struct {
	RemoveAuth bool `json:"removeAuth"`
}

type logoutResponse struct {
	Status      int    `json:"status"`
	Message     string `json:"message"`
	AuthRemoved bool   `json:"authRemoved"`
}

// Logout tears down the session, optionally deleting stored credentials.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if r.Body != nil && r.ContentLength != 0 {
		if !decodeBody(w, r, &req) {
			return
		}
	}

	removed, err := h.session.Logout(r.Context(), req.RemoveAuth)
	if errors.Is(err, session.ErrNoSession) {
		writeError(w, http.StatusBadRequest, "No active WhatsApp session found")
		return
	}
	if err != nil {
		h.log.Error("logout failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	writeJSON(w, http.StatusOK, logoutResponse{
		Status:      http.StatusOK,
		Message:     "Logged out successfully",
		AuthRemoved: removed,
	})
}

// Status reports the session state.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.GetStatus())
}

// LastReport returns the most recent sweep report.
func (h *Handlers) LastReport(w http.ResponseWriter, r *http.Request) {
	res, ok := h.sweeper.LastReport()
	if !ok {
		writeError(w, http.StatusNotFound, "no messaging runs recorded yet")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Report returns one sweep report by id.
func (h *Handlers) Report(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, ok := h.sweeper.Report(id)
	if !ok {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
