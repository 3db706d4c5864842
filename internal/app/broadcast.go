package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Erikcwill/sussuros-foundry/internal/core"
	"github.com/Erikcwill/sussuros-foundry/internal/domain"
)

// savedBroadcastState is the always-on channel's flags at the moment the
// first private outbound stream became enabled. Global, not per-peer: the
// always-on channel is a single shared broadcast.
type savedBroadcastState struct {
	muted        bool
	broadcasting bool
}

// BroadcastCoordinator suspends the shared always-on broadcast for the
// duration of a whisper and restores the prior flags afterward. A plain
// mute/unmute is not enough for a channel that continuously broadcasts to
// every listener; the broadcast itself has to stop and come back exactly as
// it was, including the case where the user kept the channel muted on purpose.
//
// The saved state is one slot guarded by a holder count: the first
// BeginExclusive captures and suspends, further ones only increment, and only
// the last EndExclusive restores. A bare single slot would let a second
// whisper overwrite a restore point that was never replayed.
type BroadcastCoordinator struct {
	channel   core.AlwaysOnChannel
	localID   domain.ParticipantID
	exclusive bool

	mu      sync.Mutex
	saved   *savedBroadcastState
	holders int
}

func NewBroadcastCoordinator(channel core.AlwaysOnChannel, localID domain.ParticipantID, exclusive bool) *BroadcastCoordinator {
	return &BroadcastCoordinator{
		channel:   channel,
		localID:   localID,
		exclusive: exclusive,
	}
}

// BeginExclusive records the channel's flags and stops its broadcast,
// reporting whether a hold was taken. Declines without a hold when the
// channel is not in always-on mode or exclusivity is not configured; private
// and shared audio then coexist. A caller that got no hold must not call
// EndExclusive, or it would release a hold belonging to another session.
func (b *BroadcastCoordinator) BeginExclusive(forPeer domain.ParticipantID) bool {
	if !b.exclusive || b.channel == nil || !b.channel.AlwaysOn() {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.holders++
	if b.holders > 1 {
		log.Debug().Str("module", "app.broadcast").Str("peer", string(forPeer)).Int("holders", b.holders).Msg("exclusive already held")
		return true
	}

	st := &savedBroadcastState{muted: b.channel.Muted(b.localID)}
	if bc, ok := b.channel.Broadcasting(); ok {
		st.broadcasting = bc
		b.channel.SetBroadcasting(false)
	} else {
		// No broadcast flag exposed: suspending means muting.
		st.broadcasting = !st.muted
		b.channel.SetMuted(b.localID, true)
	}
	b.saved = st
	log.Info().
		Str("module", "app.broadcast").
		Str("peer", string(forPeer)).
		Bool("saved_muted", st.muted).
		Bool("saved_broadcasting", st.broadcasting).
		Msg("always-on broadcast suspended")
	return true
}

// EndExclusive restores the channel's flags from the saved state once the
// last holder lets go. No-op if nothing was saved.
func (b *BroadcastCoordinator) EndExclusive() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.holders == 0 || b.saved == nil {
		return
	}
	b.holders--
	if b.holders > 0 {
		log.Debug().Str("module", "app.broadcast").Int("holders", b.holders).Msg("exclusive still held")
		return
	}

	st := b.saved
	b.saved = nil
	if _, ok := b.channel.Broadcasting(); ok {
		b.channel.SetBroadcasting(st.broadcasting)
	} else {
		// Broadcasting resumes only if the user was not muted before.
		b.channel.SetMuted(b.localID, st.muted)
	}
	log.Info().
		Str("module", "app.broadcast").
		Bool("restored_muted", st.muted).
		Bool("restored_broadcasting", st.broadcasting).
		Msg("always-on broadcast restored")
}

// Held reports whether a saved state is currently being guarded.
func (b *BroadcastCoordinator) Held() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saved != nil
}
