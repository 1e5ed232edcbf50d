package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"wabot/internal/media"
	"wabot/internal/store/contacts"
	"wabot/internal/store/settings"
	logx "wabot/pkg/logx"
)

// Dispatcher orchestrates campaign sweeps over the single session.
type Dispatcher struct {
	cfg      Config
	store    contacts.Store
	settings *settings.Store
	media    *media.Locator
	sender   Sender
	log      logx.Logger

	// sweepMu serializes sweeps: overlapping HTTP triggers must not run
	// two sweeps over the same contact store.
	sweepMu sync.Mutex
	active  bool

	reportMu sync.RWMutex
	reports  map[string]*Result
	lastID   string
}

func New(cfg Config, store contacts.Store, set *settings.Store, loc *media.Locator, sender Sender, log logx.Logger) *Dispatcher {
	if cfg.SendDelay <= 0 {
		cfg.SendDelay = defaultSendDelay
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cfg:      cfg,
		store:    store,
		settings: set,
		media:    loc,
		sender:   sender,
		log:      log,
		reports:  map[string]*Result{},
	}
}

// Dispatch runs one sweep. It fails fast when the session is not ready or
// a sweep is already active; per-contact send failures do NOT fail the
// sweep, they are collected in the result.
//
// The readiness check happens once, before the loop: if the session drops
// mid-sweep the remaining sends simply fail and are recorded.
func (d *Dispatcher) Dispatch(ctx context.Context, useAttachment bool) (*Result, error) {
	if !d.sender.IsReady() {
		return nil, ErrNotReady
	}

	d.sweepMu.Lock()
	if d.active {
		d.sweepMu.Unlock()
		return nil, ErrSweepActive
	}
	d.active = true
	d.sweepMu.Unlock()
	defer func() {
		d.sweepMu.Lock()
		d.active = false
		d.sweepMu.Unlock()
	}()

	res := &Result{ID: uuid.NewString(), StartedAt: time.Now()}

	all, err := d.store.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	var unsent []contacts.Contact
	for _, c := range all {
		if !c.Sent {
			unsent = append(unsent, c)
		}
	}
	if len(unsent) == 0 {
		// Legitimate terminal state, not a failure.
		res.DoneAt = time.Now()
		d.record(res)
		return res, nil
	}

	msg := d.settings.Read()
	mediaPath := ""
	if useAttachment {
		mediaPath = d.media.Latest()
	}

	d.log.Info("sweep started",
		logx.String("sweep", res.ID),
		logx.Int("unsent", len(unsent)),
		logx.Bool("attachment", mediaPath != ""),
	)

	limiter := rate.NewLimiter(rate.Every(d.cfg.SendDelay), 1)
	var sent []contacts.Contact

	for i := range unsent {
		// Cooperative cancellation between contacts.
		if ctx.Err() != nil {
			break
		}
		if err := limiter.Wait(ctx); err != nil {
			break
		}

		c := unsent[i]
		addr := ChatAddress(c.Phone, d.cfg.CountryCode, d.cfg.ChatSuffix)
		body := composeBody(c, msg)

		if err := d.sender.Send(ctx, addr, body, mediaPath); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, SendError{Number: c.Phone, Error: err.Error()})
			d.log.Warn("send failed",
				logx.String("sweep", res.ID),
				logx.String("phone", c.Phone),
				logx.Err(err),
			)
			continue
		}

		unsent[i].Sent = true
		sent = append(sent, unsent[i])
		res.Sent++
		d.log.Debug("message sent", logx.String("sweep", res.ID), logx.String("phone", c.Phone))
	}

	// Persist only what actually went out; failed contacts stay eligible
	// for the next sweep. The write must land even when the sweep context
	// was cancelled mid-loop: a lost sent flag means the contact gets the
	// message again on the next run.
	if len(sent) > 0 {
		if err := d.store.UpdateStatus(context.WithoutCancel(ctx), sent, true); err != nil {
			d.log.Error("persisting sent status failed", logx.String("sweep", res.ID), logx.Err(err))
			res.DoneAt = time.Now()
			d.record(res)
			return res, err
		}
	}

	res.DoneAt = time.Now()
	d.record(res)
	d.log.Info("sweep finished",
		logx.String("sweep", res.ID),
		logx.Int("sent", res.Sent),
		logx.Int("failed", res.Failed),
		logx.Duration("took", res.DoneAt.Sub(res.StartedAt)),
	)
	return res, nil
}

// composeBody resolves the greeting (contact name, falling back to the
// campaign salutation) and appends the message body.
func composeBody(c contacts.Contact, msg settings.Settings) string {
	greeting := msg.Salutation
	if c.HasName() {
		greeting = c.Name
	}
	return greeting + " " + msg.Message
}

const maxReports = 50

func (d *Dispatcher) record(r *Result) {
	d.reportMu.Lock()
	defer d.reportMu.Unlock()
	if len(d.reports) >= maxReports {
		// Drop the oldest finished report; the map is small so a scan is fine.
		oldestID := ""
		var oldest time.Time
		for id, rep := range d.reports {
			if oldestID == "" || rep.StartedAt.Before(oldest) {
				oldestID, oldest = id, rep.StartedAt
			}
		}
		delete(d.reports, oldestID)
	}
	d.reports[r.ID] = r
	d.lastID = r.ID
}

// Report returns the sweep report with the given id.
func (d *Dispatcher) Report(id string) (*Result, bool) {
	d.reportMu.RLock()
	defer d.reportMu.RUnlock()
	r, ok := d.reports[id]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// LastReport returns the most recent sweep report, if any.
func (d *Dispatcher) LastReport() (*Result, bool) {
	d.reportMu.RLock()
	defer d.reportMu.RUnlock()
	if d.lastID == "" {
		return nil, false
	}
	r := d.reports[d.lastID]
	cp := *r
	return &cp, true
}
