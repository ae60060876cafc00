package metrics

// Peek returns the stored snapshot for key without modifying it.
func (s *CounterStore) Peek(key CounterKey) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.entries[key]
	return snap, ok
}
