package pilestatus

import (
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/pilesim/core/model"
)

// Operational states reported by the status API.
const (
	StateIdle     = "idle"
	StateCharging = "charging"
	StateClosed   = "closed"
)

// Status captures the last known state of a pile.
type Status struct {
	PileID        string    `json:"pile_id"`
	ChargeType    string    `json:"charge_type,omitempty"`
	PowerKW       float64   `json:"power_kw,omitempty"`
	CurrentStatus string    `json:"current_status"`
	ActiveRequest string    `json:"active_request,omitempty"`
	EnergyKWh     float64   `json:"energy_kwh,omitempty"`
	TotalCost     float64   `json:"total_cost,omitempty"`
	EstimatedEnd  time.Time `json:"estimated_end,omitempty"`
	Waiting       int       `json:"waiting"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Filter struct {
	ChargeType string
	Status     string
}

type Store interface {
	Set(Status)
	Record(ev model.PileEvent)
	Get(id string) (Status, bool)
	List(Filter) []Status
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Status
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]Status{}}
}

func (s *MemoryStore) Set(st Status) {
	if st.CurrentStatus == "" {
		st.CurrentStatus = StateIdle
	}
	s.mu.Lock()
	s.data[st.PileID] = st
	s.mu.Unlock()
}

// Record folds a pile event into the stored snapshot. Unknown piles are
// created on the fly.
func (s *MemoryStore) Record(ev model.PileEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.data[ev.PileID]
	if st.PileID == "" {
		st.PileID = ev.PileID
		st.CurrentStatus = StateIdle
	}
	if st.ChargeType == "" && ev.Session.Request.Type.Valid() {
		st.ChargeType = string(ev.Session.Request.Type)
	}
	st.Waiting = ev.Waiting
	st.UpdatedAt = ev.Time
	switch ev.Kind {
	case model.EventProgress:
		st.CurrentStatus = StateCharging
		st.ActiveRequest = ev.Session.Request.ID
		st.EnergyKWh = ev.Session.EnergyKWh
		st.TotalCost = ev.Session.TotalCost()
		st.EstimatedEnd = ev.EstimatedEnd
	case model.EventCompleted, model.EventInterrupted:
		st.CurrentStatus = StateIdle
		st.ActiveRequest = ""
		st.EnergyKWh = 0
		st.TotalCost = 0
		st.EstimatedEnd = time.Time{}
	case model.EventClosed:
		st.CurrentStatus = StateClosed
		st.ActiveRequest = ""
		st.EnergyKWh = 0
		st.TotalCost = 0
		st.EstimatedEnd = time.Time{}
	case model.EventOpened:
		st.CurrentStatus = StateIdle
	}
	s.data[ev.PileID] = st
}

func (s *MemoryStore) Get(id string) (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.data[id]
	return st, ok
}

func (s *MemoryStore) List(f Filter) []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Status, 0, len(s.data))
	for _, st := range s.data {
		if f.ChargeType != "" && st.ChargeType != f.ChargeType {
			continue
		}
		if f.Status != "" && st.CurrentStatus != f.Status {
			continue
		}
		res = append(res, st)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].PileID < res[j].PileID })
	return res
}
