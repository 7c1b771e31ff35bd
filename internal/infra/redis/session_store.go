package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

// SessionStore keeps session progress as JSON documents in Redis so a
// restart (or another instance reading the same Redis) sees the same
// progress.
// Notes:
//   - The single-writer guarantee per key is provided by in-process
//     per-player mutexes; per-player is slightly stricter than per-key
//     and also covers the cross-rule-set abandonment walk.
//   - For true multi-instance writes you'd replace the mutexes with a
//     Redis-side compare-and-swap (WATCH/MULTI) on the session document.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	clock  func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client: client,
		ttl:    ttl,
		clock:  time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (s *SessionStore) playerLock(player string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[player]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[player] = lock
	}
	return lock
}

func (s *SessionStore) GetOrStart(ctx context.Context, key app.SessionKey, fresh bool, build app.PlaylistFunc) (domain.Session, bool, error) {
	lock := s.playerLock(key.Player)
	lock.Lock()
	defer lock.Unlock()

	session, found, err := s.load(ctx, key)
	if err != nil {
		return domain.Session{}, false, err
	}
	if found && !fresh {
		return session, false, nil
	}

	playlist, err := build(ctx)
	if err != nil {
		return domain.Session{}, false, err
	}

	// Abandon whichever session the player currently has in progress,
	// whatever rule set it belongs to.
	if active, err := s.client.Get(ctx, s.activeKey(key.Player)).Result(); err == nil && active != "" && active != key.RuleSet {
		otherKey := app.SessionKey{Player: key.Player, RuleSet: active}
		if other, ok, err := s.load(ctx, otherKey); err == nil && ok && other.Status == domain.StatusInProgress {
			other.Status = domain.StatusAbandoned
			other.UpdatedAt = s.clock()
			if err := s.save(ctx, otherKey, other); err != nil {
				return domain.Session{}, false, err
			}
		}
	}

	now := s.clock()
	session = domain.Session{
		Player:      key.Player,
		RuleSetSlug: key.RuleSet,
		Playlist:    playlist,
		Status:      domain.StatusInProgress,
		StartedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.save(ctx, key, session); err != nil {
		return domain.Session{}, false, err
	}
	if err := s.client.Set(ctx, s.activeKey(key.Player), key.RuleSet, s.ttl).Err(); err != nil {
		return domain.Session{}, false, fmt.Errorf("set active session: %w", err)
	}
	return session, true, nil
}

func (s *SessionStore) Get(ctx context.Context, key app.SessionKey) (domain.Session, bool, error) {
	lock := s.playerLock(key.Player)
	lock.Lock()
	defer lock.Unlock()
	return s.load(ctx, key)
}

func (s *SessionStore) AdvanceIfCurrent(ctx context.Context, key app.SessionKey, questionID int) (bool, error) {
	lock := s.playerLock(key.Player)
	lock.Lock()
	defer lock.Unlock()

	session, found, err := s.load(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if session.Status != domain.StatusInProgress || session.Exhausted() || session.Playlist[session.Cursor] != questionID {
		return false, nil
	}
	session.Cursor++
	session.UpdatedAt = s.clock()
	if err := s.save(ctx, key, session); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SessionStore) ApplyAnswer(ctx context.Context, key app.SessionKey, event domain.AnswerEvent, delta int) (domain.Session, error) {
	lock := s.playerLock(key.Player)
	lock.Lock()
	defer lock.Unlock()

	session, found, err := s.load(ctx, key)
	if err != nil {
		return domain.Session{}, err
	}
	if !found {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	session.Score += delta
	if event.Correct {
		session.CorrectCount++
	}
	session.Answers = append(session.Answers, event)
	session.UpdatedAt = s.clock()
	if err := s.save(ctx, key, session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

func (s *SessionStore) Complete(ctx context.Context, key app.SessionKey, bonus int) (domain.Session, error) {
	lock := s.playerLock(key.Player)
	lock.Lock()
	defer lock.Unlock()

	session, found, err := s.load(ctx, key)
	if err != nil {
		return domain.Session{}, err
	}
	if !found {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if session.Status == domain.StatusInProgress {
		session.Status = domain.StatusCompleted
		session.Score += bonus
		session.UpdatedAt = s.clock()
		if err := s.save(ctx, key, session); err != nil {
			return domain.Session{}, err
		}
		_ = s.client.Del(ctx, s.activeKey(key.Player)).Err()
	}
	return session, nil
}

func (s *SessionStore) Cancel(ctx context.Context, key app.SessionKey) error {
	lock := s.playerLock(key.Player)
	lock.Lock()
	defer lock.Unlock()

	session, found, err := s.load(ctx, key)
	if err != nil || !found {
		return err
	}
	if session.Status.Terminal() {
		return nil
	}
	session.Status = domain.StatusAbandoned
	session.UpdatedAt = s.clock()
	if err := s.save(ctx, key, session); err != nil {
		return err
	}
	_ = s.client.Del(ctx, s.activeKey(key.Player)).Err()
	return nil
}

func (s *SessionStore) load(ctx context.Context, key app.SessionKey) (domain.Session, bool, error) {
	raw, err := s.client.Get(ctx, s.sessionKey(key)).Bytes()
	if err == redis.Nil {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("load session: %w", err)
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.Session{}, false, fmt.Errorf("unmarshal session: %w", err)
	}
	return session, true, nil
}

func (s *SessionStore) save(ctx context.Context, key app.SessionKey, session domain.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.sessionKey(key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SessionStore) sessionKey(key app.SessionKey) string {
	return "quiz:session:" + key.Player + ":" + key.RuleSet
}

func (s *SessionStore) activeKey(player string) string {
	return "quiz:active:" + player
}
