package core

// PeerIndicator is the visual control bound to one participant. The UI layer
// owns the underlying element; the core only toggles flags on it and never
// creates or destroys it.
type PeerIndicator interface {
	SetConnected(on bool)
	// SetBroadcasting marks that the local user is transmitting to this peer.
	SetBroadcasting(on bool)
	// SetRemoteTalking marks that this peer is transmitting to the local user.
	SetRemoteTalking(on bool)
}

// NopIndicator is used when the UI layer has not registered a control yet.
type NopIndicator struct{}

func (NopIndicator) SetConnected(bool)     {}
func (NopIndicator) SetBroadcasting(bool)  {}
func (NopIndicator) SetRemoteTalking(bool) {}
