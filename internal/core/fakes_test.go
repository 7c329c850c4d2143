package core

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/roomsync/internal/domain"
)

// fakeAuth is an in-memory AuthAuthority with controllable blocking and
// event emission.
type fakeAuth struct {
	mu           sync.Mutex
	session      *Session
	sessionErr   error
	block        chan struct{} // when set, CurrentSession waits on it
	sessionCalls int
	signOutCalls int
	nextID       int
	handlers     map[int]func(AuthEvent)
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{handlers: make(map[int]func(AuthEvent))}
}

func (f *fakeAuth) CurrentSession(ctx context.Context) (*Session, error) {
	f.mu.Lock()
	f.sessionCalls++
	block := f.block
	sess, err := f.session, f.sessionErr
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		f.mu.Lock()
		sess, err = f.session, f.sessionErr
		f.mu.Unlock()
	}
	return sess, err
}

func (f *fakeAuth) OnStateChange(handler func(AuthEvent)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.handlers[id] = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, id)
	}, nil
}

func (f *fakeAuth) SignOut(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOutCalls++
	f.session = nil
	return nil
}

func (f *fakeAuth) emit(ev AuthEvent) {
	f.mu.Lock()
	handlers := make([]func(AuthEvent), 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (f *fakeAuth) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessionCalls
}

// fakeStore is an in-memory RecordStore with per-call error injection.
type fakeStore struct {
	mu       sync.Mutex
	profiles map[domain.UserID]domain.Profile
	rooms    map[domain.RoomID]domain.Room
	members  map[domain.RoomID][]domain.Member
	messages map[domain.RoomID][]domain.Message

	profileErr     error
	profileErrOnce error // consumed by the first ProfileByID call
	createErr      error
	roomErr        error
	membersErr     error
	messagesErr    error
	isMemberErr    error
	insertErr      error
	removeErr      error

	createCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles: make(map[domain.UserID]domain.Profile),
		rooms:    make(map[domain.RoomID]domain.Room),
		members:  make(map[domain.RoomID][]domain.Member),
		messages: make(map[domain.RoomID][]domain.Message),
	}
}

func (f *fakeStore) ProfileByID(ctx context.Context, id domain.UserID) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profileErrOnce != nil {
		err := f.profileErrOnce
		f.profileErrOnce = nil
		return nil, err
	}
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	p, ok := f.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (f *fakeStore) CreateProfile(ctx context.Context, p *domain.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.profiles[p.ID]; exists {
		return ErrConflict
	}
	f.profiles[p.ID] = *p
	return nil
}

func (f *fakeStore) RoomByID(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roomErr != nil {
		return nil, f.roomErr
	}
	r, ok := f.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (f *fakeStore) RoomMembers(ctx context.Context, roomID domain.RoomID) ([]domain.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.membersErr != nil {
		return nil, f.membersErr
	}
	return append([]domain.Member(nil), f.members[roomID]...), nil
}

func (f *fakeStore) RoomMessages(ctx context.Context, roomID domain.RoomID) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messagesErr != nil {
		return nil, f.messagesErr
	}
	return append([]domain.Message(nil), f.messages[roomID]...), nil
}

func (f *fakeStore) IsMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.isMemberErr != nil {
		return false, f.isMemberErr
	}
	for _, m := range f.members[roomID] {
		if m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) InsertMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	confirmed := *m
	f.messages[m.RoomID] = append(f.messages[m.RoomID], confirmed)
	return &confirmed, nil
}

func (f *fakeStore) AddMember(ctx context.Context, m *domain.Member) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.members[m.RoomID] {
		if existing.UserID == m.UserID {
			return ErrConflict
		}
	}
	f.members[m.RoomID] = append(f.members[m.RoomID], *m)
	return nil
}

func (f *fakeStore) RemoveMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	kept := f.members[roomID][:0]
	for _, m := range f.members[roomID] {
		if m.UserID != userID {
			kept = append(kept, m)
		}
	}
	f.members[roomID] = kept
	return nil
}

// fakeRealtime delivers events synchronously to registered handlers.
type fakeRealtime struct {
	mu     sync.Mutex
	nextID int
	msgs   map[int]msgSub
	mems   map[int]memSub
	onLost map[int]func(error)

	subErr    error // fails any subscribe
	memSubErr error // fails only membership subscribes
}

type msgSub struct {
	roomID  domain.RoomID
	handler func(MessageEvent)
}

type memSub struct {
	roomID  domain.RoomID
	handler func(MembershipEvent)
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{
		msgs:   make(map[int]msgSub),
		mems:   make(map[int]memSub),
		onLost: make(map[int]func(error)),
	}
}

type fakeSub struct {
	cancel func()
	once   sync.Once
}

func (s *fakeSub) Unsubscribe() error {
	s.once.Do(s.cancel)
	return nil
}

func (f *fakeRealtime) SubscribeMessages(roomID domain.RoomID, handler func(MessageEvent)) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	id := f.nextID
	f.nextID++
	f.msgs[id] = msgSub{roomID: roomID, handler: handler}
	return &fakeSub{cancel: func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.msgs, id)
	}}, nil
}

func (f *fakeRealtime) SubscribeMembership(roomID domain.RoomID, handler func(MembershipEvent)) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	if f.memSubErr != nil {
		return nil, f.memSubErr
	}
	id := f.nextID
	f.nextID++
	f.mems[id] = memSub{roomID: roomID, handler: handler}
	return &fakeSub{cancel: func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.mems, id)
	}}, nil
}

func (f *fakeRealtime) OnDisconnect(handler func(error)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.onLost[id] = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.onLost, id)
	}
}

func (f *fakeRealtime) emitMessage(roomID domain.RoomID, ev MessageEvent) {
	f.mu.Lock()
	handlers := make([]func(MessageEvent), 0, len(f.msgs))
	for _, s := range f.msgs {
		if s.roomID == roomID {
			handlers = append(handlers, s.handler)
		}
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (f *fakeRealtime) emitMembership(roomID domain.RoomID, ev MembershipEvent) {
	f.mu.Lock()
	handlers := make([]func(MembershipEvent), 0, len(f.mems))
	for _, s := range f.mems {
		if s.roomID == roomID {
			handlers = append(handlers, s.handler)
		}
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (f *fakeRealtime) emitDisconnect(err error) {
	f.mu.Lock()
	handlers := make([]func(error), 0, len(f.onLost))
	for _, h := range f.onLost {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(err)
	}
}

func (f *fakeRealtime) activeSubs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs) + len(f.mems)
}

// helpers

func testIdentity(id string) domain.Identity {
	return domain.Identity{ID: domain.UserID(id), Email: id + "@example.com", Name: id}
}

func testMessage(id string, roomID domain.RoomID, userID domain.UserID, at time.Time) domain.Message {
	return domain.Message{
		ID:        domain.MessageID(id),
		RoomID:    roomID,
		UserID:    userID,
		Content:   "msg " + id,
		CreatedAt: at,
	}
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
