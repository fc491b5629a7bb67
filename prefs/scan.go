package prefs

// boot runs the Scanning phase of Init.
func (s *Store) boot() error {
	sig, err := s.read32(sigOff)
	if err != nil {
		return err
	}
	if sig != s.sig {
		if err := s.format(); err != nil {
			return err
		}
		s.cleared = true
	}
	j, err := s.loadJournal()
	if err != nil {
		return err
	}
	if j.active {
		if err := s.resume(j); err != nil {
			return err
		}
	}
	return s.scan()
}

// format zeroes the pool behind the signature and then writes the
// signature, so an interrupted format is redone on the next boot.
func (s *Store) format() error {
	var zero [16]byte
	for off := uint32(journalOff); off < s.size; off += uint32(len(zero)) {
		n := min(uint32(len(zero)), s.size-off)
		if err := s.writeAt(off, zero[:n]); err != nil {
			return err
		}
	}
	s.jseq, s.jnext = 0, 0
	return s.write32(sigOff, s.sig)
}

// truncate empties the log and both journal slots.
func (s *Store) truncate() error {
	var zero [2 * slotSize]byte
	if err := s.writeAt(journalOff, zero[:]); err != nil {
		return err
	}
	s.jseq, s.jnext = 0, 0
	if err := s.writeAt(logStart, []byte{stateEnd}); err != nil {
		return err
	}
	clear(s.index)
	s.tail = logStart
	s.live, s.stale = 0, 0
	return nil
}

// scan walks the log from logStart and rebuilds the index. A later live
// record for a key supersedes an earlier one, which is marked stale; this
// is the state left by a power cut between an append and its stale mark.
func (s *Store) scan() error {
	clear(s.index)
	s.live, s.stale = 0, 0

	off := uint32(logStart)
	clean := true
	for off < s.size {
		h, ok, err := s.readHeader(off)
		if err != nil {
			return err
		}
		if !ok {
			clean = h.state == stateEnd
			break
		}
		n := h.size()
		switch h.state {
		case stateLive:
			if prev, dup := s.index[h.key]; dup {
				if err := s.markStale(prev); err != nil {
					return err
				}
			}
			s.index[h.key] = entry{off: off, n: h.n}
			s.live += n
		case stateStale:
			s.stale += n
		}
		off += n
	}
	s.tail = off
	// Anything other than a proper end marker at the tail is replaced so the
	// next append starts from a known state byte.
	if !clean && off < s.size {
		return s.writeAt(off, []byte{stateEnd})
	}
	return nil
}

// readHeader reads the record header at off. ok is false at the end of the
// log: an end marker, an unknown state, a bad header checksum or a record
// that would run past the pool.
func (s *Store) readHeader(off uint32) (h header, ok bool, err error) {
	if off+recHeader > s.size {
		if err := s.readAt(off, s.hdr[:1]); err != nil {
			return header{}, false, err
		}
		return header{state: s.hdr[0]}, false, nil
	}
	if err := s.readAt(off, s.hdr[:]); err != nil {
		return header{}, false, err
	}
	h, ok = parseHeader(s.hdr[:])
	if ok && off+h.size() > s.size {
		ok = false
	}
	if !ok && h.state != stateEnd {
		// Mark as not a clean end for the caller.
		h.state = 0xFF
	}
	return h, ok, nil
}

// ---- journal ----

func (s *Store) loadJournal() (journal, error) {
	var a, b [slotSize]byte
	if err := s.readAt(journalOff, a[:]); err != nil {
		return journal{}, err
	}
	if err := s.readAt(journalOff+slotSize, b[:]); err != nil {
		return journal{}, err
	}
	ja, okA := decodeJournal(a[:])
	jb, okB := decodeJournal(b[:])
	switch {
	case okA && (!okB || newer(ja.seq, jb.seq)):
		s.jseq, s.jnext = ja.seq, 1
		return ja, nil
	case okB:
		s.jseq, s.jnext = jb.seq, 0
		return jb, nil
	default:
		s.jseq, s.jnext = 0, 0
		return journal{}, nil
	}
}

// writeJournal stores j in the older slot with the next sequence number.
func (s *Store) writeJournal(j journal) error {
	j.seq = s.jseq + 1
	j.encode(s.slot[:])
	if err := s.writeAt(journalOff+uint32(s.jnext)*slotSize, s.slot[:]); err != nil {
		return err
	}
	s.jseq = j.seq
	s.jnext ^= 1
	return nil
}
