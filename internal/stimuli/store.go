package stimuli

import "sync/atomic"

// Store holds the set new pairs draw from. Readers get a private copy.
type Store struct {
	current atomic.Pointer[Set]
}

func NewStore(initial Set) *Store {
	store := &Store{}
	store.Replace(initial)
	return store
}

func (s *Store) Current() Set {
	if s == nil {
		return Default()
	}
	set := s.current.Load()
	if set == nil {
		return Default()
	}
	return set.Clone()
}

func (s *Store) Replace(set Set) {
	clone := set.Clone()
	s.current.Store(&clone)
}
