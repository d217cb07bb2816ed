package testutil

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Willy-Angole/abilispace-sub002/internal/models"
	"github.com/Willy-Angole/abilispace-sub002/internal/repository"
)

// MockStore is an in-memory repository.StoreInterface for tests.
// Transactions are serialized and roll back by restoring a snapshot.
type MockStore struct {
	data *mockData
	txMu *sync.Mutex
	inTx bool
}

type markerKey struct {
	convID uint
	userID uint
}

type mockData struct {
	mu sync.Mutex

	conversations map[uint]models.Conversation
	participants  map[uint]models.Participant
	messages      map[uint]models.Message
	markers       map[markerKey]models.ReadMarker

	nextConvID        uint
	nextParticipantID uint
	nextMessageID     uint

	// failTransactions makes the next N transactions fail before running.
	failTransactions int
	transactions     int

	// afterCountUnread runs once, after counts are computed and before they
	// are returned.
	afterCountUnread func()
}

func NewMockStore() *MockStore {
	return &MockStore{
		data: &mockData{
			conversations:     make(map[uint]models.Conversation),
			participants:      make(map[uint]models.Participant),
			messages:          make(map[uint]models.Message),
			markers:           make(map[markerKey]models.ReadMarker),
			nextConvID:        1,
			nextParticipantID: 1,
			nextMessageID:     1,
		},
		txMu: &sync.Mutex{},
	}
}

func (s *MockStore) FailNextTransactions(n int) {
	s.data.mu.Lock()
	s.data.failTransactions = n
	s.data.mu.Unlock()
}

// AfterCountUnread registers fn to run once between the next unread count
// and its return, simulating a write that lands in that window.
func (s *MockStore) AfterCountUnread(fn func()) {
	s.data.mu.Lock()
	s.data.afterCountUnread = fn
	s.data.mu.Unlock()
}

func (s *MockStore) TransactionCount() int {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	return s.data.transactions
}

func (s *MockStore) Conversations() repository.ConversationRepositoryInterface {
	return &mockConversations{d: s.data}
}

func (s *MockStore) Participants() repository.ParticipantRepositoryInterface {
	return &mockParticipants{d: s.data}
}

func (s *MockStore) Messages() repository.MessageRepositoryInterface {
	return &mockMessages{d: s.data}
}

func (s *MockStore) ReadMarkers() repository.ReadMarkerRepositoryInterface {
	return &mockMarkers{d: s.data}
}

func (s *MockStore) Transaction(ctx context.Context, fn func(tx repository.StoreInterface) error) error {
	if s.inTx {
		return fn(s)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.data.mu.Lock()
	s.data.transactions++
	if s.data.failTransactions > 0 {
		s.data.failTransactions--
		s.data.mu.Unlock()
		return errors.New("connection reset by peer")
	}
	snap := s.data.snapshot()
	s.data.mu.Unlock()

	if err := fn(&MockStore{data: s.data, txMu: s.txMu, inTx: true}); err != nil {
		s.data.mu.Lock()
		s.data.restore(snap)
		s.data.mu.Unlock()
		return err
	}
	return nil
}

type mockSnapshot struct {
	conversations map[uint]models.Conversation
	participants  map[uint]models.Participant
	messages      map[uint]models.Message
	markers       map[markerKey]models.ReadMarker
	ids           [3]uint
}

func (d *mockData) snapshot() mockSnapshot {
	snap := mockSnapshot{
		conversations: make(map[uint]models.Conversation, len(d.conversations)),
		participants:  make(map[uint]models.Participant, len(d.participants)),
		messages:      make(map[uint]models.Message, len(d.messages)),
		markers:       make(map[markerKey]models.ReadMarker, len(d.markers)),
		ids:           [3]uint{d.nextConvID, d.nextParticipantID, d.nextMessageID},
	}
	for k, v := range d.conversations {
		snap.conversations[k] = v
	}
	for k, v := range d.participants {
		snap.participants[k] = v
	}
	for k, v := range d.messages {
		snap.messages[k] = v
	}
	for k, v := range d.markers {
		snap.markers[k] = v
	}
	return snap
}

func (d *mockData) restore(snap mockSnapshot) {
	d.conversations = snap.conversations
	d.participants = snap.participants
	d.messages = snap.messages
	d.markers = snap.markers
	d.nextConvID, d.nextParticipantID, d.nextMessageID = snap.ids[0], snap.ids[1], snap.ids[2]
}

type mockConversations struct{ d *mockData }

func (r *mockConversations) Create(ctx context.Context, conv *models.Conversation) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if conv.DirectKey != nil {
		for _, c := range r.d.conversations {
			if c.DirectKey != nil && *c.DirectKey == *conv.DirectKey {
				return repository.ErrDuplicateKey
			}
		}
	}
	conv.ID = r.d.nextConvID
	r.d.nextConvID++
	stored := *conv
	stored.Participants = nil
	r.d.conversations[conv.ID] = stored
	return nil
}

func (r *mockConversations) FindByID(ctx context.Context, id uint) (*models.Conversation, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	c, ok := r.d.conversations[id]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	return &c, nil
}

func (r *mockConversations) FindByIDForUpdate(ctx context.Context, id uint) (*models.Conversation, error) {
	return r.FindByID(ctx, id)
}

func (r *mockConversations) FindDirectByKey(ctx context.Context, key string) (*models.Conversation, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, c := range r.d.conversations {
		if c.Kind == models.KindDirect && c.DirectKey != nil && *c.DirectKey == key {
			found := c
			return &found, nil
		}
	}
	return nil, repository.ErrRecordNotFound
}

func (r *mockConversations) Update(ctx context.Context, conv *models.Conversation) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.conversations[conv.ID]; !ok {
		return repository.ErrRecordNotFound
	}
	stored := *conv
	stored.Participants = nil
	r.d.conversations[conv.ID] = stored
	return nil
}

func (r *mockConversations) TouchLastMessage(ctx context.Context, convID, messageID uint, at time.Time) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	c, ok := r.d.conversations[convID]
	if !ok {
		return nil
	}
	if c.LastMessageAt == nil || (models.Cursor{At: *c.LastMessageAt, ID: *c.LastMessageID}).Before(models.Cursor{At: at, ID: messageID}) {
		id, ts := messageID, at
		c.LastMessageID = &id
		c.LastMessageAt = &ts
		r.d.conversations[convID] = c
	}
	return nil
}

func (r *mockConversations) activeFor(userID uint) []models.Conversation {
	var out []models.Conversation
	for _, c := range r.d.conversations {
		for _, p := range r.d.participants {
			if p.ConversationID == c.ID && p.UserID == userID && p.Active() {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func (r *mockConversations) ListForUser(ctx context.Context, userID uint, before *models.Cursor, limit int) ([]models.Conversation, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	convs := r.activeFor(userID)
	sort.Slice(convs, func(i, j int) bool {
		return (models.Cursor{At: convs[j].LastActivity(), ID: convs[j].ID}).Before(models.Cursor{At: convs[i].LastActivity(), ID: convs[i].ID})
	})
	var out []models.Conversation
	for _, c := range convs {
		if before != nil && !(models.Cursor{At: c.LastActivity(), ID: c.ID}).Before(*before) {
			continue
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *mockConversations) SearchForUser(ctx context.Context, userID uint, query string, limit int) ([]models.Conversation, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []models.Conversation
	for _, c := range r.activeFor(userID) {
		if c.IsGroup() && strings.Contains(strings.ToLower(c.Name), strings.ToLower(query)) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type mockParticipants struct{ d *mockData }

func (r *mockParticipants) createLocked(p *models.Participant) error {
	for _, existing := range r.d.participants {
		if existing.ConversationID == p.ConversationID && existing.UserID == p.UserID && existing.Active() {
			return repository.ErrDuplicateKey
		}
	}
	p.ID = r.d.nextParticipantID
	r.d.nextParticipantID++
	r.d.participants[p.ID] = *p
	return nil
}

func (r *mockParticipants) Create(ctx context.Context, p *models.Participant) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	return r.createLocked(p)
}

func (r *mockParticipants) CreateBatch(ctx context.Context, ps []models.Participant) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for i := range ps {
		if err := r.createLocked(&ps[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *mockParticipants) FindActive(ctx context.Context, convID, userID uint) (*models.Participant, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, p := range r.d.participants {
		if p.ConversationID == convID && p.UserID == userID && p.Active() {
			found := p
			return &found, nil
		}
	}
	return nil, repository.ErrRecordNotFound
}

func (r *mockParticipants) list(convID uint, activeOnly bool) []models.Participant {
	out := []models.Participant{}
	for _, p := range r.d.participants {
		if p.ConversationID != convID || (activeOnly && !p.Active()) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *mockParticipants) ListActive(ctx context.Context, convID uint) ([]models.Participant, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	return r.list(convID, true), nil
}

func (r *mockParticipants) ListHistory(ctx context.Context, convID uint) ([]models.Participant, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	return r.list(convID, false), nil
}

func (r *mockParticipants) MarkLeft(ctx context.Context, participantID uint, at time.Time) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	p, ok := r.d.participants[participantID]
	if !ok || !p.Active() {
		return repository.ErrRecordNotFound
	}
	p.LeftAt = &at
	r.d.participants[participantID] = p
	return nil
}

func (r *mockParticipants) UpdateRole(ctx context.Context, participantID uint, role models.Role) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	p, ok := r.d.participants[participantID]
	if !ok || !p.Active() {
		return repository.ErrRecordNotFound
	}
	p.Role = role
	r.d.participants[participantID] = p
	return nil
}

type mockMessages struct{ d *mockData }

func (r *mockMessages) Create(ctx context.Context, message *models.Message) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if message.ClientID != nil {
		for _, m := range r.d.messages {
			if m.ClientID != nil && *m.ClientID == *message.ClientID && m.SenderID == message.SenderID {
				return repository.ErrDuplicateKey
			}
		}
	}
	message.ID = r.d.nextMessageID
	r.d.nextMessageID++
	r.d.messages[message.ID] = *message
	return nil
}

func (r *mockMessages) FindByID(ctx context.Context, id uint) (*models.Message, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	m, ok := r.d.messages[id]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	return &m, nil
}

func (r *mockMessages) FindByClientID(ctx context.Context, senderID uint, clientID string) (*models.Message, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, m := range r.d.messages {
		if m.SenderID == senderID && m.ClientID != nil && *m.ClientID == clientID {
			found := m
			return &found, nil
		}
	}
	return nil, repository.ErrRecordNotFound
}

func (r *mockMessages) Update(ctx context.Context, message *models.Message) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	m, ok := r.d.messages[message.ID]
	if !ok {
		return repository.ErrRecordNotFound
	}
	m.Content = message.Content
	m.EditedAt = message.EditedAt
	m.DeletedAt = message.DeletedAt
	r.d.messages[message.ID] = m
	return nil
}

// ordered returns a conversation's messages in ascending (created_at, id) order.
func (r *mockMessages) ordered(convID uint) []models.Message {
	var out []models.Message
	for _, m := range r.d.messages {
		if m.ConversationID == convID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(&out[j]) })
	return out
}

func (r *mockMessages) ListBefore(ctx context.Context, convID uint, before *models.Cursor, limit int) ([]models.Message, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	all := r.ordered(convID)
	var out []models.Message
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if before != nil && !all[i].Cursor().Before(*before) {
			continue
		}
		out = append(out, all[i])
	}
	return out, nil
}

func (r *mockMessages) ListAfter(ctx context.Context, convID uint, after *models.Cursor, limit int) ([]models.Message, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []models.Message
	for _, m := range r.ordered(convID) {
		if len(out) == limit {
			break
		}
		if after != nil && !after.Before(m.Cursor()) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *mockMessages) Latest(ctx context.Context, convID uint) (*models.Message, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	all := r.ordered(convID)
	if len(all) == 0 {
		return nil, repository.ErrRecordNotFound
	}
	return &all[len(all)-1], nil
}

func (r *mockMessages) LatestAmong(ctx context.Context, convID uint, ids []uint) (*models.Message, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	wanted := make(map[uint]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var latest *models.Message
	for _, m := range r.ordered(convID) {
		if wanted[m.ID] {
			found := m
			latest = &found
		}
	}
	if latest == nil {
		return nil, repository.ErrRecordNotFound
	}
	return latest, nil
}

func (r *mockMessages) Search(ctx context.Context, convID uint, query string, limit int) ([]models.Message, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	all := r.ordered(convID)
	var out []models.Message
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		m := all[i]
		if m.IsDeleted() || m.Kind != models.TextMessage {
			continue
		}
		if strings.Contains(strings.ToLower(m.Content), strings.ToLower(query)) {
			out = append(out, m)
		}
	}
	return out, nil
}

type mockMarkers struct{ d *mockData }

func (r *mockMarkers) UpsertMonotonic(ctx context.Context, marker *models.ReadMarker) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	key := markerKey{marker.ConversationID, marker.UserID}
	if existing, ok := r.d.markers[key]; ok && !existing.Cursor().Before(marker.Cursor()) {
		return nil
	}
	r.d.markers[key] = *marker
	return nil
}

func (r *mockMarkers) Get(ctx context.Context, convID, userID uint) (*models.ReadMarker, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	m, ok := r.d.markers[markerKey{convID, userID}]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	return &m, nil
}

func (r *mockMarkers) ListByConversation(ctx context.Context, convID uint) ([]models.ReadMarker, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []models.ReadMarker
	for k, m := range r.d.markers {
		if k.convID == convID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *mockMarkers) CountUnread(ctx context.Context, userID uint) (map[uint]int64, error) {
	r.d.mu.Lock()
	out := r.countUnreadLocked(userID)
	hook := r.d.afterCountUnread
	r.d.afterCountUnread = nil
	r.d.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (r *mockMarkers) countUnreadLocked(userID uint) map[uint]int64 {
	out := make(map[uint]int64)
	for _, p := range r.d.participants {
		if p.UserID != userID || !p.Active() {
			continue
		}
		marker, hasMarker := r.d.markers[markerKey{p.ConversationID, userID}]
		out[p.ConversationID] = 0
		for _, m := range r.d.messages {
			if m.ConversationID != p.ConversationID || m.SenderID == userID || m.IsDeleted() {
				continue
			}
			if hasMarker && !marker.Cursor().Before(m.Cursor()) {
				continue
			}
			out[p.ConversationID]++
		}
	}
	return out
}

// MockUnreadCache mirrors the generation-stamped Redis cache: every
// invalidation bumps the user's generation, and fills stamped with an older
// generation are never served.
type MockUnreadCache struct {
	mu          sync.Mutex
	generations map[uint]int64
	summaries   map[genKey]models.UnreadSummary
	invalidated map[uint]int
}

type genKey struct {
	userID uint
	gen    int64
}

func NewMockUnreadCache() *MockUnreadCache {
	return &MockUnreadCache{
		generations: make(map[uint]int64),
		summaries:   make(map[genKey]models.UnreadSummary),
		invalidated: make(map[uint]int),
	}
}

func (c *MockUnreadCache) Get(ctx context.Context, userID uint) (models.UnreadSummary, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gen := c.generations[userID]
	s, ok := c.summaries[genKey{userID, gen}]
	return s, gen, ok
}

func (c *MockUnreadCache) Set(ctx context.Context, userID uint, gen int64, summary models.UnreadSummary) error {
	if gen < 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summaries[genKey{userID, gen}] = summary
	return nil
}

func (c *MockUnreadCache) Invalidate(ctx context.Context, userIDs ...uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range userIDs {
		c.generations[id]++
		c.invalidated[id]++
	}
	return nil
}

func (c *MockUnreadCache) Invalidations(userID uint) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidated[userID]
}
