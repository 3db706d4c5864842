// Package channel mirrors the host session's always-on broadcast flags.
// The broadcast subsystem itself lives in the host application; the UI glue
// pushes its current state in and observes commands written back out.
package channel

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Erikcwill/sussuros-foundry/internal/domain"
)

// State is the observable slice of the always-on channel.
type State struct {
	AlwaysOn         bool                          `json:"always_on"`
	Broadcasting     bool                          `json:"broadcasting"`
	HasBroadcastFlag bool                          `json:"has_broadcast_flag"`
	Muted            map[domain.ParticipantID]bool `json:"muted"`
}

// Mirror implements core.AlwaysOnChannel over a pushed-in snapshot. Writes
// mutate the mirror and fire OnChange so the host side can apply them to the
// real channel.
type Mirror struct {
	mu       sync.RWMutex
	state    State
	onChange func(State)
}

func NewMirror() *Mirror {
	return &Mirror{state: State{Muted: make(map[domain.ParticipantID]bool)}}
}

// OnChange registers the hook invoked after every write.
func (m *Mirror) OnChange(fn func(State)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Update replaces the mirrored snapshot with what the host reports.
func (m *Mirror) Update(s State) {
	if s.Muted == nil {
		s.Muted = make(map[domain.ParticipantID]bool)
	}
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	log.Debug().Str("module", "channel").Bool("always_on", s.AlwaysOn).Bool("broadcasting", s.Broadcasting).Msg("channel state updated")
}

// Snapshot returns a copy of the mirrored state.
func (m *Mirror) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.state
	s.Muted = make(map[domain.ParticipantID]bool, len(m.state.Muted))
	for k, v := range m.state.Muted {
		s.Muted[k] = v
	}
	return s
}

func (m *Mirror) AlwaysOn() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.AlwaysOn
}

func (m *Mirror) Muted(id domain.ParticipantID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Muted[id]
}

func (m *Mirror) SetMuted(id domain.ParticipantID, muted bool) {
	m.mu.Lock()
	m.state.Muted[id] = muted
	st := m.state
	fn := m.onChange
	m.mu.Unlock()
	log.Info().Str("module", "channel").Str("user", string(id)).Bool("muted", muted).Msg("mute flag written")
	if fn != nil {
		fn(st)
	}
}

func (m *Mirror) Broadcasting() (bool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Broadcasting, m.state.HasBroadcastFlag
}

func (m *Mirror) SetBroadcasting(on bool) {
	m.mu.Lock()
	m.state.Broadcasting = on
	st := m.state
	fn := m.onChange
	m.mu.Unlock()
	log.Info().Str("module", "channel").Bool("broadcasting", on).Msg("broadcast flag written")
	if fn != nil {
		fn(st)
	}
}
