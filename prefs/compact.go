package prefs

// compact slides live records down to logStart in log order, dropping stale
// ones, then rebuilds the index.
//
// Every byte at or after the read offset is still the original log, so the
// walk can be resumed from the last journal entry. A record is copied in
// chunks no longer than the distance it moves, which keeps the chunk being
// copied intact until the journal says it is done.
//
// A failure part way leaves the medium mid-compaction and the index out of
// date; the store drops back to Uninitialized and Init resumes the work.
func (s *Store) compact() error {
	s.state = Compacting
	err := s.slide(logStart, logStart)
	if err == nil {
		err = s.scan()
	}
	if err != nil {
		s.state = Uninitialized
		return err
	}
	s.state = Ready
	return nil
}

// resume finishes a compaction interrupted by a power cut.
func (s *Store) resume(j journal) error {
	prev := s.state
	s.state = Compacting
	defer func() { s.state = prev }()

	r, w := uint32(j.read), uint32(j.write)
	if w >= r || r+uint32(j.size) > s.size || j.done > j.size {
		// Not something this code wrote; leave the log alone.
		return s.writeJournal(journal{})
	}
	if j.size > 0 {
		if err := s.move(r, w, uint32(j.size), uint32(j.done)); err != nil {
			return err
		}
		r += uint32(j.size)
		w += uint32(j.size)
	}
	return s.slide(r, w)
}

// slide walks records from read offset r, writing live ones at w.
func (s *Store) slide(r, w uint32) error {
	moved := false
	for r < s.size {
		h, ok, err := s.readHeader(r)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		n := h.size()
		if h.state == stateLive {
			if r != w {
				if err := s.move(r, w, n, 0); err != nil {
					return err
				}
				moved = true
			}
			w += n
		}
		r += n
	}
	if w < s.size && w != r {
		if err := s.writeAt(w, []byte{stateEnd}); err != nil {
			return err
		}
	}
	if moved || s.journalActive() {
		return s.writeJournal(journal{})
	}
	return nil
}

// move copies n bytes of the record at r down to w, starting after done.
func (s *Store) move(r, w, n, done uint32) error {
	j := journal{active: true, read: uint16(r), write: uint16(w), size: uint16(n), done: uint16(done)}
	if err := s.writeJournal(j); err != nil {
		return err
	}
	step := min(r-w, uint32(len(s.chunk)))
	for done < n {
		c := min(n-done, step)
		buf := s.chunk[:c]
		if err := s.readAt(r+done, buf); err != nil {
			return err
		}
		if err := s.writeAt(w+done, buf); err != nil {
			return err
		}
		done += c
		j.done = uint16(done)
		if err := s.writeJournal(j); err != nil {
			return err
		}
	}
	return nil
}

// journalActive reports whether the newest journal slot on the medium is
// still marked active (only after a resume).
func (s *Store) journalActive() bool {
	j, err := s.loadJournal()
	return err == nil && j.active
}
