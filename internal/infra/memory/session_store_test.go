package memory

import (
	"context"
	"sync"
	"testing"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

func staticPlaylist(ids ...int) app.PlaylistFunc {
	return func(ctx context.Context) ([]int, error) {
		return ids, nil
	}
}

func TestSessionStoreStartAndResume(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	key := app.SessionKey{Player: "alice", RuleSet: "daily"}

	session, started, err := store.GetOrStart(ctx, key, false, staticPlaylist(1, 2, 3))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !started || session.Status != domain.StatusInProgress || len(session.Playlist) != 3 {
		t.Fatalf("expected fresh in-progress session, got started=%v %+v", started, session)
	}

	// A second call without the fresh signal resumes unchanged.
	resumed, started, err := store.GetOrStart(ctx, key, false, staticPlaylist(9))
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if started || len(resumed.Playlist) != 3 {
		t.Fatalf("expected resume of existing session, got started=%v %+v", started, resumed)
	}
}

func TestSessionStoreFreshReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	key := app.SessionKey{Player: "alice", RuleSet: "daily"}

	if _, _, err := store.GetOrStart(ctx, key, false, staticPlaylist(1, 2)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if ok, err := store.AdvanceIfCurrent(ctx, key, 1); err != nil || !ok {
		t.Fatalf("advance: ok=%v err=%v", ok, err)
	}

	session, started, err := store.GetOrStart(ctx, key, true, staticPlaylist(5, 6))
	if err != nil {
		t.Fatalf("fresh start: %v", err)
	}
	if !started || session.Cursor != 0 || session.Score != 0 || session.Playlist[0] != 5 {
		t.Fatalf("expected zeroed replacement session, got started=%v %+v", started, session)
	}
}

func TestAdvanceIfCurrentGuards(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	key := app.SessionKey{Player: "alice", RuleSet: "daily"}
	if _, _, err := store.GetOrStart(ctx, key, false, staticPlaylist(1, 2)); err != nil {
		t.Fatalf("start: %v", err)
	}

	if ok, _ := store.AdvanceIfCurrent(ctx, key, 2); ok {
		t.Fatalf("advancing past a non-current question must fail")
	}
	if ok, _ := store.AdvanceIfCurrent(ctx, key, 1); !ok {
		t.Fatalf("advancing the current question must succeed")
	}
	// Stale resubmission of the passed question.
	if ok, _ := store.AdvanceIfCurrent(ctx, key, 1); ok {
		t.Fatalf("stale advance must be a no-op")
	}
}

func TestConcurrentDuplicateAdvanceWinsOnce(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	key := app.SessionKey{Player: "alice", RuleSet: "daily"}
	if _, _, err := store.GetOrStart(ctx, key, false, staticPlaylist(1, 2)); err != nil {
		t.Fatalf("start: %v", err)
	}

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.AdvanceIfCurrent(ctx, key, 1)
			if err != nil {
				t.Errorf("advance: %v", err)
			}
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("double-click protection failed: %d advances succeeded", wins)
	}
	session, _, _ := store.Get(ctx, key)
	if session.Cursor != 1 {
		t.Fatalf("expected cursor 1, got %d", session.Cursor)
	}
}

func TestApplyAnswerAccumulates(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	key := app.SessionKey{Player: "alice", RuleSet: "daily"}
	if _, _, err := store.GetOrStart(ctx, key, false, staticPlaylist(1, 2)); err != nil {
		t.Fatalf("start: %v", err)
	}

	session, err := store.ApplyAnswer(ctx, key, domain.AnswerEvent{QuestionID: 1, Selected: "1", Correct: true}, 10)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if session.Score != 10 || session.CorrectCount != 1 || len(session.Answers) != 1 {
		t.Fatalf("unexpected session after correct answer: %+v", session)
	}
	session, err = store.ApplyAnswer(ctx, key, domain.AnswerEvent{QuestionID: 2, Selected: "", Correct: false}, 0)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if session.Score != 10 || session.CorrectCount != 1 || len(session.Answers) != 2 {
		t.Fatalf("score must only change on correct answers: %+v", session)
	}
}

func TestStartAbandonsOtherRuleSets(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	keyA := app.SessionKey{Player: "alice", RuleSet: "a"}
	keyB := app.SessionKey{Player: "alice", RuleSet: "b"}
	other := app.SessionKey{Player: "bob", RuleSet: "a"}

	if _, _, err := store.GetOrStart(ctx, keyA, false, staticPlaylist(1)); err != nil {
		t.Fatalf("start a: %v", err)
	}
	if _, _, err := store.GetOrStart(ctx, other, false, staticPlaylist(1)); err != nil {
		t.Fatalf("start bob: %v", err)
	}
	if _, _, err := store.GetOrStart(ctx, keyB, false, staticPlaylist(2)); err != nil {
		t.Fatalf("start b: %v", err)
	}

	a, _, _ := store.Get(ctx, keyA)
	if a.Status != domain.StatusAbandoned {
		t.Fatalf("expected rule set a abandoned, got %s", a.Status)
	}
	b, _, _ := store.Get(ctx, keyB)
	if b.Status != domain.StatusInProgress {
		t.Fatalf("expected rule set b in progress, got %s", b.Status)
	}
	// Other players are untouched.
	bob, _, _ := store.Get(ctx, other)
	if bob.Status != domain.StatusInProgress {
		t.Fatalf("expected bob unaffected, got %s", bob.Status)
	}
}

func TestConcurrentStartsKeepSingleInProgress(t *testing.T) {
	ctx := context.Background()
	keyA := app.SessionKey{Player: "alice", RuleSet: "a"}
	keyB := app.SessionKey{Player: "alice", RuleSet: "b"}

	// Two rule sets started at once: whichever commit lands second must
	// see the other entry and abandon it, never leaving both in progress.
	for i := 0; i < 200; i++ {
		store := NewSessionStore()
		var wg sync.WaitGroup
		for _, key := range []app.SessionKey{keyA, keyB} {
			wg.Add(1)
			go func(key app.SessionKey) {
				defer wg.Done()
				if _, _, err := store.GetOrStart(ctx, key, false, staticPlaylist(1)); err != nil {
					t.Errorf("start %s: %v", key.RuleSet, err)
				}
			}(key)
		}
		wg.Wait()

		a, _, _ := store.Get(ctx, keyA)
		b, _, _ := store.Get(ctx, keyB)
		inProgress := 0
		for _, session := range []domain.Session{a, b} {
			if session.Status == domain.StatusInProgress {
				inProgress++
			}
		}
		if inProgress > 1 {
			t.Fatalf("iteration %d: both rule sets in progress (a=%s b=%s)", i, a.Status, b.Status)
		}
	}
}

func TestCancelIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	key := app.SessionKey{Player: "alice", RuleSet: "daily"}
	if _, _, err := store.GetOrStart(ctx, key, false, staticPlaylist(1)); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := store.Cancel(ctx, key); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := store.Cancel(ctx, key); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	session, _, _ := store.Get(ctx, key)
	if session.Status != domain.StatusAbandoned {
		t.Fatalf("expected abandoned, got %s", session.Status)
	}

	// Completing after cancel must not resurrect the session.
	session, err := store.Complete(ctx, key, 5)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if session.Status != domain.StatusAbandoned || session.Score != 0 {
		t.Fatalf("terminal status re-entered: %+v", session)
	}
}
