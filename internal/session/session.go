package session

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"

	logx "wabot/pkg/logx"
)

// Manager drives the single WhatsApp client connection.
type Manager struct {
	cfg Config
	log logx.Logger

	mu           sync.Mutex
	container    *sqlstore.Container
	client       *whatsmeow.Client
	state        State
	initializing bool

	// readyCh is closed (once) when the current connect attempt reaches
	// ready; recreated on every Connect().
	readyCh   chan struct{}
	readyOnce *sync.Once
}

func NewManager(cfg Config, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	return &Manager{cfg: cfg, log: log, state: StateAbsent}
}

// IsReady is a pure state read with no side effects.
func (m *Manager) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateReady && m.client != nil
}

// CurrentState returns the session state.
func (m *Manager) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// GetStatus reports the external status view.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{Status: "disconnected", Client: "not_initialized", Initializing: m.initializing}
	if m.state == StateReady {
		st.Status = "connected"
	}
	if m.client != nil {
		st.Client = "initialized"
	}
	return st
}

// Connect starts a fresh connect sequence and blocks until the first
// terminal transport event: a QR challenge, an already-ready session, or a
// failure. The wait is bounded by the configured connect timeout; on
// timeout the attempt keeps running in the background but the caller gets
// ErrConnectTimeout.
//
// A connect attempt already in progress is torn down first (best-effort).
func (m *Manager) Connect(ctx context.Context) (ConnectResult, error) {
	m.mu.Lock()

	m.teardownLocked(false)
	m.state = StateConnecting
	m.initializing = true
	m.readyCh = make(chan struct{})
	m.readyOnce = &sync.Once{}
	readyCh := m.readyCh

	if m.container == nil {
		if err := os.MkdirAll(filepath.Dir(m.cfg.StorePath), 0o755); err != nil {
			m.failLocked()
			m.mu.Unlock()
			return ConnectResult{}, err
		}
		container, err := sqlstore.New(ctx, "sqlite3",
			"file:"+m.cfg.StorePath+"?_foreign_keys=on", newWALogger(m.log, "database"))
		if err != nil {
			m.failLocked()
			m.mu.Unlock()
			return ConnectResult{}, err
		}
		m.container = container
	}

	device, err := m.container.GetFirstDevice(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		device = m.container.NewDevice()
	} else if err != nil {
		m.failLocked()
		m.mu.Unlock()
		return ConnectResult{}, err
	}

	client := whatsmeow.NewClient(device, newWALogger(m.log, "client"))
	m.client = client
	client.AddEventHandler(func(evt any) { m.handleEvent(client, evt) })

	needsPairing := client.Store.ID == nil
	m.mu.Unlock()

	timeout := time.NewTimer(m.cfg.ConnectTimeout)
	defer timeout.Stop()

	if !needsPairing {
		// Stored credentials: connect and wait for the ready signal.
		if err := client.Connect(); err != nil {
			m.fail()
			return ConnectResult{}, err
		}
		return awaitReady(ctx, readyCh, timeout.C)
	}

	// Fresh device: the QR channel must be obtained before Connect().
	qrChan, err := client.GetQRChannel(context.Background())
	if err != nil {
		m.fail()
		return ConnectResult{}, err
	}
	if err := client.Connect(); err != nil {
		m.fail()
		return ConnectResult{}, err
	}

	for {
		select {
		case evt, ok := <-qrChan:
			if !ok {
				m.fail()
				return ConnectResult{}, errors.New("transport closed before login completed")
			}
			switch evt.Event {
			case "code":
				// Deliver the first challenge to this caller and keep
				// draining the channel in the background so a later scan
				// still completes the login.
				m.setState(StateAwaitingScan)
				res, err := challengeResult(evt.Code, m.log)
				if err != nil {
					m.fail()
					return ConnectResult{}, err
				}
				go m.awaitScan(qrChan)
				return res, nil
			case "success":
				// The scan was accepted; ready is only reported once the
				// connected event actually lands.
				return awaitReady(ctx, readyCh, timeout.C)
			case "timeout":
				m.fail()
				return ConnectResult{}, ErrConnectTimeout
			default:
				if evt.Error != nil {
					m.fail()
					return ConnectResult{}, evt.Error
				}
			}
		case <-timeout.C:
			return ConnectResult{}, ErrConnectTimeout
		case <-ctx.Done():
			return ConnectResult{}, ctx.Err()
		}
	}
}

// awaitReady blocks until the transport reports connected, the bound
// expires, or the caller gives up.
func awaitReady(ctx context.Context, readyCh <-chan struct{}, timeout <-chan time.Time) (ConnectResult, error) {
	select {
	case <-readyCh:
		return ConnectResult{Ready: true}, nil
	case <-timeout:
		return ConnectResult{}, ErrConnectTimeout
	case <-ctx.Done():
		return ConnectResult{}, ctx.Err()
	}
}

// awaitScan consumes the remaining QR events after the first challenge was
// already delivered. Further codes are ignored for that caller; only the
// final outcome changes state.
func (m *Manager) awaitScan(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			// refreshed challenge; nothing to deliver
		case "success":
			m.log.Info("login scan accepted")
			return // ready state arrives via events.Connected
		case "timeout":
			m.log.Warn("login challenge expired before scan")
			m.fail()
			return
		default:
			if evt.Error != nil {
				m.log.Error("login failed", logx.Err(evt.Error))
			}
			m.fail()
			return
		}
	}
}

func (m *Manager) handleEvent(client *whatsmeow.Client, evt any) {
	m.mu.Lock()
	// Ignore events from a torn-down client generation.
	if m.client != client {
		m.mu.Unlock()
		return
	}

	switch evt.(type) {
	case *events.Connected:
		m.state = StateReady
		m.initializing = false
		if m.readyOnce != nil {
			ch := m.readyCh
			m.readyOnce.Do(func() { close(ch) })
		}
		m.mu.Unlock()
		m.log.Info("session ready")
	case *events.Disconnected:
		m.state = StateDisconnected
		m.initializing = false
		m.mu.Unlock()
		m.log.Warn("session disconnected")
	case *events.LoggedOut:
		m.state = StateAbsent
		m.initializing = false
		m.mu.Unlock()
		m.log.Warn("session logged out by remote")
	default:
		m.mu.Unlock()
	}
}

// Logout performs a best-effort logout, then tears the client down
// regardless of the logout outcome. When removeCredentials is set, the
// persisted authentication material is deleted, tolerating absence.
func (m *Manager) Logout(ctx context.Context, removeCredentials bool) (credentialsRemoved bool, err error) {
	m.mu.Lock()
	client := m.client
	if client == nil {
		m.mu.Unlock()
		return false, ErrNoSession
	}
	m.mu.Unlock()

	if err := client.Logout(ctx); err != nil {
		m.log.Warn("logout failed; destroying session anyway", logx.Err(err))
	}

	m.mu.Lock()
	m.teardownLocked(true)
	m.state = StateAbsent
	m.initializing = false

	if removeCredentials {
		credentialsRemoved = m.removeCredentialsLocked()
	}
	m.mu.Unlock()
	return credentialsRemoved, nil
}

// Disconnect tears the client down without logging the device out.
// Stored credentials stay valid for the next Connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil && m.container == nil {
		return
	}
	m.teardownLocked(true)
	m.initializing = false
	if m.state != StateAbsent {
		m.state = StateDisconnected
	}
}

// teardownLocked destroys the current client, tolerating destroy-time
// errors. Callers hold m.mu.
func (m *Manager) teardownLocked(closeContainer bool) {
	if m.client != nil {
		m.client.Disconnect()
		m.client = nil
	}
	if closeContainer && m.container != nil {
		_ = m.container.Close()
		m.container = nil
	}
}

// removeCredentialsLocked deletes the credential database (and its WAL
// sidecars). Absence is not an error.
func (m *Manager) removeCredentialsLocked() bool {
	if m.container != nil {
		_ = m.container.Close()
		m.container = nil
	}
	removed := false
	for _, p := range []string{m.cfg.StorePath, m.cfg.StorePath + "-wal", m.cfg.StorePath + "-shm"} {
		err := os.Remove(p)
		if err == nil && p == m.cfg.StorePath {
			removed = true
		}
		if err != nil && !os.IsNotExist(err) {
			m.log.Warn("failed removing credential file", logx.String("path", p), logx.Err(err))
		}
	}
	if removed {
		m.log.Info("authentication material removed")
	}
	return removed
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) fail() {
	m.mu.Lock()
	m.failLocked()
	m.mu.Unlock()
}

func (m *Manager) failLocked() {
	m.state = StateFailed
	m.initializing = false
}
