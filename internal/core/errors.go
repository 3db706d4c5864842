package core

import "errors"

var (
	// ErrDeviceUnavailable — no input device configured or access denied.
	// Reported to the user; the session stays connected with outbound disabled.
	ErrDeviceUnavailable = errors.New("audio input device unavailable")
	// ErrHandshakeIncompatible — the transport reported a terminal negotiation
	// failure. Treated as close.
	ErrHandshakeIncompatible = errors.New("handshake incompatible")
	// ErrTransportSevered — the data path was lost after connect. Treated as close.
	ErrTransportSevered = errors.New("transport severed")
	// ErrRelayUnreachable — a send to the relay failed. Logged, not retried;
	// the operation that triggered it proceeds best-effort.
	ErrRelayUnreachable = errors.New("relay unreachable")
)
