// Package session owns the single WhatsApp connection.
//
// The manager is an explicit state machine (absent, connecting,
// awaiting-scan, ready, disconnected, failed) constructed once per process
// and handed to the dispatcher. Connect() resolves to exactly one terminal
// outcome per call: a QR challenge to scan, an already-ready session, or
// an error (including a bounded-wait timeout). There is no auto-reconnect;
// after a disconnect a fresh Connect() is required.
package session
