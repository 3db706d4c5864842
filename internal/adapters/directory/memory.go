// Package directory keeps a mirrored roster of the host session's
// participants, fed by the UI glue through the control API.
package directory

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Erikcwill/sussuros-foundry/internal/domain"
)

type Memory struct {
	localID domain.ParticipantID

	mu           sync.RWMutex
	participants map[domain.ParticipantID]*domain.Participant
}

func NewMemory(localID domain.ParticipantID) *Memory {
	return &Memory{
		localID:      localID,
		participants: make(map[domain.ParticipantID]*domain.Participant),
	}
}

// Upsert adds or refreshes one roster entry.
func (d *Memory) Upsert(p domain.Participant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := p
	d.participants[p.ID] = &cp
	log.Info().Str("module", "directory").Str("id", string(p.ID)).Bool("active", p.Active).Msg("participant upserted")
}

// Remove drops one roster entry.
func (d *Memory) Remove(id domain.ParticipantID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.participants, id)
	log.Info().Str("module", "directory").Str("id", string(id)).Msg("participant removed")
}

func (d *Memory) IsActive(id domain.ParticipantID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.participants[id]
	return ok && p.Active
}

func (d *Memory) IsLocal(id domain.ParticipantID) bool {
	return id == d.localID
}

func (d *Memory) Active() []domain.Participant {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Participant, 0, len(d.participants))
	for _, p := range d.participants {
		if p.Active {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
