package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

// SessionStore is the in-memory implementation of app.SessionRepository.
// Each key owns its own mutex, so operations on the same key are
// serialized while distinct keys proceed in parallel; the registry lock
// is only held for map bookkeeping.
type SessionStore struct {
	mu      sync.Mutex
	entries map[app.SessionKey]*sessionEntry
	clock   func() time.Time
}

type sessionEntry struct {
	mu      sync.Mutex
	session domain.Session
}

func NewSessionStore() *SessionStore {
	return NewSessionStoreWithClock(time.Now)
}

// NewSessionStoreWithClock is test-only for deterministic timestamps.
func NewSessionStoreWithClock(clock func() time.Time) *SessionStore {
	return &SessionStore{
		entries: make(map[app.SessionKey]*sessionEntry),
		clock:   clock,
	}
}

func (s *SessionStore) entryFor(key app.SessionKey) *sessionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		entry = &sessionEntry{session: domain.Session{
			Player:      key.Player,
			RuleSetSlug: key.RuleSet,
			Status:      domain.StatusNotStarted,
		}}
		s.entries[key] = entry
	}
	return entry
}

// playerEntries snapshots every entry belonging to player, sorted by
// rule-set slug. Multi-entry sections always lock in that order, which
// keeps concurrent starts on different rule sets deadlock-free.
func (s *SessionStore) playerEntries(player string) []*sessionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]app.SessionKey, 0, len(s.entries))
	for key := range s.entries {
		if key.Player == player {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].RuleSet < keys[j].RuleSet })
	entries := make([]*sessionEntry, len(keys))
	for i, key := range keys {
		entries[i] = s.entries[key]
	}
	return entries
}

func (s *SessionStore) GetOrStart(ctx context.Context, key app.SessionKey, fresh bool, build app.PlaylistFunc) (domain.Session, bool, error) {
	entry := s.entryFor(key)

	entry.mu.Lock()
	if entry.session.Status != domain.StatusNotStarted && !fresh {
		session := cloneSession(entry.session)
		entry.mu.Unlock()
		return session, false, nil
	}
	entry.mu.Unlock()

	// Pool queries run outside any lock; the critical section below
	// re-checks before committing the new game.
	playlist, err := build(ctx)
	if err != nil {
		return domain.Session{}, false, err
	}

	// A concurrent start on another rule set may add a player entry
	// between snapshot and lock; retry until the locked set is the
	// current set, so the abandonment walk below cannot miss it.
	var siblings []*sessionEntry
	for {
		siblings = s.playerEntries(key.Player)
		for _, sibling := range siblings {
			sibling.mu.Lock()
		}
		if sameEntries(siblings, s.playerEntries(key.Player)) {
			break
		}
		for _, sibling := range siblings {
			sibling.mu.Unlock()
		}
	}
	defer func() {
		for _, sibling := range siblings {
			sibling.mu.Unlock()
		}
	}()

	if entry.session.Status != domain.StatusNotStarted && !fresh {
		return cloneSession(entry.session), false, nil
	}

	now := s.clock()
	// A player has at most one in-progress session across all rule sets.
	for _, sibling := range siblings {
		if sibling != entry && sibling.session.Status == domain.StatusInProgress {
			sibling.session.Status = domain.StatusAbandoned
			sibling.session.UpdatedAt = now
		}
	}
	entry.session = domain.Session{
		Player:      key.Player,
		RuleSetSlug: key.RuleSet,
		Playlist:    playlist,
		Status:      domain.StatusInProgress,
		StartedAt:   now,
		UpdatedAt:   now,
	}
	return cloneSession(entry.session), true, nil
}

func (s *SessionStore) Get(ctx context.Context, key app.SessionKey) (domain.Session, bool, error) {
	s.mu.Lock()
	entry, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return domain.Session{}, false, nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.session.Status == domain.StatusNotStarted {
		return domain.Session{}, false, nil
	}
	return cloneSession(entry.session), true, nil
}

func (s *SessionStore) AdvanceIfCurrent(ctx context.Context, key app.SessionKey, questionID int) (bool, error) {
	s.mu.Lock()
	entry, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	sess := &entry.session
	if sess.Status != domain.StatusInProgress || sess.Exhausted() || sess.Playlist[sess.Cursor] != questionID {
		return false, nil
	}
	sess.Cursor++
	sess.UpdatedAt = s.clock()
	return true, nil
}

func (s *SessionStore) ApplyAnswer(ctx context.Context, key app.SessionKey, event domain.AnswerEvent, delta int) (domain.Session, error) {
	s.mu.Lock()
	entry, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	sess := &entry.session
	sess.Score += delta
	if event.Correct {
		sess.CorrectCount++
	}
	sess.Answers = append(sess.Answers, event)
	sess.UpdatedAt = s.clock()
	return cloneSession(*sess), nil
}

func (s *SessionStore) Complete(ctx context.Context, key app.SessionKey, bonus int) (domain.Session, error) {
	s.mu.Lock()
	entry, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	sess := &entry.session
	if sess.Status == domain.StatusInProgress {
		sess.Status = domain.StatusCompleted
		sess.Score += bonus
		sess.UpdatedAt = s.clock()
	}
	return cloneSession(*sess), nil
}

func (s *SessionStore) Cancel(ctx context.Context, key app.SessionKey) error {
	s.mu.Lock()
	entry, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.session.Status.Terminal() && entry.session.Status != domain.StatusNotStarted {
		entry.session.Status = domain.StatusAbandoned
		entry.session.UpdatedAt = s.clock()
	}
	return nil
}

func sameEntries(a, b []*sessionEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// cloneSession copies the slices so callers never alias store state.
func cloneSession(sess domain.Session) domain.Session {
	sess.Playlist = append([]int(nil), sess.Playlist...)
	sess.Answers = append([]domain.AnswerEvent(nil), sess.Answers...)
	return sess
}
