package core

import (
	"github.com/aretw0/introspection"
)

// ServiceState exposes internal state for observability.
type ServiceState struct {
	Collection string `json:"collection"`
	StoreType  string `json:"store_type"`
	OpenViews  int    `json:"open_views"`
	ViewBuffer int    `json:"view_buffer"`
}

// State implements introspection.Introspectable.
func (s *Service) State() any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	storeType := "unknown"
	if s.store != nil {
		storeType = "store"
		if comp, ok := s.store.(introspection.Component); ok {
			storeType = comp.ComponentType()
		}
	}

	return ServiceState{
		Collection: s.collection,
		StoreType:  storeType,
		OpenViews:  len(s.views),
		ViewBuffer: s.viewBuffer,
	}
}

// ComponentType implements introspection.Component.
func (s *Service) ComponentType() string {
	return "service"
}

// ViewState exposes a LiveView's state for observability.
type ViewState struct {
	Mode    string `json:"mode"`
	Query   string `json:"query"`
	Search  string `json:"search,omitempty"`
	Filter  string `json:"filter"`
	Seq     uint64 `json:"seq"`
	Notes   int    `json:"notes"`
	Visible int    `json:"visible"`
	Closed  bool   `json:"closed"`
	Error   string `json:"error,omitempty"`
}

// State implements introspection.Introspectable.
func (v *LiveView) State() any {
	v.mu.Lock()
	defer v.mu.Unlock()

	st := ViewState{
		Mode:    v.mode.String(),
		Query:   v.query.String(),
		Search:  v.opts.Search,
		Filter:  string(v.opts.Filter),
		Seq:     v.seq,
		Notes:   len(v.notes),
		Visible: len(v.view),
		Closed:  v.closed,
	}
	if v.err != nil {
		st.Error = v.err.Error()
	}
	return st
}

// ComponentType implements introspection.Component.
func (v *LiveView) ComponentType() string {
	return "view"
}

var _ introspection.Introspectable = (*Service)(nil)
var _ introspection.Component = (*Service)(nil)
var _ introspection.Introspectable = (*LiveView)(nil)
var _ introspection.Component = (*LiveView)(nil)
