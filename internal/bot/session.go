package bot

import "sync"

type pendingKind int

const (
	pendingComplete pendingKind = iota
	pendingDelete
)

// pendingAction waits for the user to confirm it.
type pendingAction struct {
	taskID uint
	kind   pendingKind
}

// sessions keeps per-user dialog state between updates.
type sessions struct {
	mu      sync.Mutex
	dialogs map[int64]*conversationState
	pending map[int64]pendingAction
}

func newSessions() *sessions {
	return &sessions{
		dialogs: make(map[int64]*conversationState),
		pending: make(map[int64]pendingAction),
	}
}

func (s *sessions) dialog(userID int64) *conversationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dialogs[userID]
}

// beginDialog replaces any pending confirmation with a new dialog.
func (s *sessions) beginDialog(userID int64, state *conversationState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, userID)
	s.dialogs[userID] = state
}

func (s *sessions) endDialog(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dialogs, userID)
}

func (s *sessions) awaiting(userID int64) (pendingAction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[userID]
	return p, ok
}

func (s *sessions) await(userID int64, p pendingAction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[userID] = p
}

// take removes and returns the pending action.
func (s *sessions) take(userID int64) (pendingAction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[userID]
	delete(s.pending, userID)
	return p, ok
}

func (s *sessions) reset(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dialogs, userID)
	delete(s.pending, userID)
}
