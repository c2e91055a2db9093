package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ginuineca/ArtistSync2/internal/apperr"
	"github.com/ginuineca/ArtistSync2/internal/user"
)

// In-memory store doubles. They honor the same contracts as the postgres
// repositories (atomic find-or-create, idempotent receipts, non-negative
// counters) so engine tests exercise real semantics without a database.

type fakeConvStore struct {
	mu         sync.Mutex
	convs      map[uuid.UUID]*Conversation
	unread     map[uuid.UUID]map[uuid.UUID]int
	directKeys map[string]uuid.UUID

	// msgs mirrors the production repo's weak last-message resolution:
	// a dangling pointer leaves LastMessage nil.
	msgs *fakeMsgStore
}

func newFakeConvStore() *fakeConvStore {
	return &fakeConvStore{
		convs:      make(map[uuid.UUID]*Conversation),
		unread:     make(map[uuid.UUID]map[uuid.UUID]int),
		directKeys: make(map[string]uuid.UUID),
	}
}

func (s *fakeConvStore) FindOrCreateDirect(_ context.Context, creator, other uuid.UUID) (*Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, b := creator.String(), other.String()
	if a > b {
		a, b = b, a
	}
	key := a + ":" + b
	if id, ok := s.directKeys[key]; ok {
		return s.convs[id], false, nil
	}

	now := time.Now()
	conv := &Conversation{
		ID:   uuid.New(),
		Type: ConversationDirect,
		Participants: []Participant{
			{UserID: creator, Role: RoleAdmin, JoinedAt: now},
			{UserID: other, Role: RoleMember, JoinedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.convs[conv.ID] = conv
	s.directKeys[key] = conv.ID
	s.unread[conv.ID] = make(map[uuid.UUID]int)
	return conv, true, nil
}

func (s *fakeConvStore) CreateGroup(_ context.Context, creator uuid.UUID, members []uuid.UUID, name string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	conv := &Conversation{
		ID:           uuid.New(),
		Type:         ConversationGroup,
		Name:         name,
		Participants: []Participant{{UserID: creator, Role: RoleAdmin, JoinedAt: now}},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, m := range members {
		if m == creator {
			continue
		}
		conv.Participants = append(conv.Participants, Participant{UserID: m, Role: RoleMember, JoinedAt: now})
	}
	s.convs[conv.ID] = conv
	s.unread[conv.ID] = make(map[uuid.UUID]int)
	return conv, nil
}

func (s *fakeConvStore) Get(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	s.mu.Lock()
	conv, ok := s.convs[id]
	s.mu.Unlock()
	if !ok {
		return nil, apperr.NotFound("conversation not found")
	}

	conv.LastMessage = nil
	if s.msgs != nil && conv.LastMessageID != nil {
		if msg, err := s.msgs.Get(ctx, *conv.LastMessageID); err == nil {
			conv.LastMessage = msg
		}
	}
	return conv, nil
}

func (s *fakeConvStore) ListFor(_ context.Context, userID uuid.UUID, page, limit int) ([]*Conversation, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Conversation
	for _, conv := range s.convs {
		if conv.IsParticipant(userID) {
			conv.UnreadCount = s.unread[conv.ID][userID]
			out = append(out, conv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (s *fakeConvStore) AddParticipant(_ context.Context, conversationID, userID uuid.UUID, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[conversationID]
	if !ok {
		return apperr.NotFound("conversation not found")
	}
	if conv.IsParticipant(userID) {
		return apperr.Conflict("already a participant")
	}
	conv.Participants = append(conv.Participants, Participant{UserID: userID, Role: role, JoinedAt: time.Now()})
	return nil
}

func (s *fakeConvStore) RemoveParticipant(_ context.Context, conversationID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[conversationID]
	if !ok {
		return apperr.NotFound("conversation not found")
	}
	kept := conv.Participants[:0]
	for _, p := range conv.Participants {
		if p.UserID != userID {
			kept = append(kept, p)
		}
	}
	conv.Participants = kept
	delete(s.unread[conversationID], userID)
	return nil
}

func (s *fakeConvStore) SetRole(_ context.Context, conversationID, userID uuid.UUID, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[conversationID]
	if !ok {
		return apperr.NotFound("conversation not found")
	}
	for i := range conv.Participants {
		if conv.Participants[i].UserID == userID {
			conv.Participants[i].Role = role
			return nil
		}
	}
	return apperr.NotFound("participant not found")
}

func (s *fakeConvStore) IsParticipant(_ context.Context, conversationID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[conversationID]
	if !ok {
		return false, apperr.NotFound("conversation not found")
	}
	return conv.IsParticipant(userID), nil
}

func (s *fakeConvStore) IncrementUnread(_ context.Context, conversationID, exceptUser uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[conversationID]
	if !ok {
		return apperr.NotFound("conversation not found")
	}
	for _, p := range conv.Participants {
		if p.UserID != exceptUser {
			s.unread[conversationID][p.UserID]++
		}
	}
	return nil
}

func (s *fakeConvStore) ResetUnread(_ context.Context, conversationID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if counts, ok := s.unread[conversationID]; ok {
		counts[userID] = 0
	}
	return nil
}

func (s *fakeConvStore) UnreadCounts(_ context.Context, conversationID uuid.UUID) (map[uuid.UUID]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]int)
	for userID, n := range s.unread[conversationID] {
		out[userID] = n
	}
	return out, nil
}

func (s *fakeConvStore) SetLastMessage(_ context.Context, conversationID, messageID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[conversationID]
	if !ok {
		return apperr.NotFound("conversation not found")
	}
	id := messageID
	conv.LastMessageID = &id
	conv.UpdatedAt = time.Now()
	return nil
}

func (s *fakeConvStore) TouchLastSeen(_ context.Context, conversationID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[conversationID]
	if !ok {
		return apperr.NotFound("conversation not found")
	}
	now := time.Now()
	for i := range conv.Participants {
		if conv.Participants[i].UserID == userID {
			conv.Participants[i].LastSeen = &now
		}
	}
	return nil
}

func (s *fakeConvStore) Delete(_ context.Context, conversationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, conversationID)
	delete(s.unread, conversationID)
	return nil
}

func (s *fakeConvStore) unreadOf(conversationID, userID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[conversationID][userID]
}

type fakeMsgStore struct {
	mu   sync.Mutex
	msgs []*Message
	seq  int64

	now func() time.Time
}

func newFakeMsgStore() *fakeMsgStore {
	return &fakeMsgStore{now: time.Now}
}

func (s *fakeMsgStore) Append(_ context.Context, conversationID, sender uuid.UUID, content string, attachments []Attachment, replyTo *uuid.UUID) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	msg := &Message{
		ID:             uuid.New(),
		Seq:            s.seq,
		ConversationID: conversationID,
		SenderID:       sender,
		Content:        content,
		Attachments:    attachments,
		ReplyTo:        replyTo,
		CreatedAt:      s.now(),
	}
	msg.ReadBy = []ReadReceipt{{UserID: sender, ReadAt: msg.CreatedAt}}
	s.msgs = append(s.msgs, msg)
	return msg, nil
}

func (s *fakeMsgStore) Get(_ context.Context, id uuid.UUID) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.msgs {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, apperr.NotFound("message not found")
}

func (s *fakeMsgStore) ListPage(_ context.Context, conversationID uuid.UUID, page, limit int) ([]*Message, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*Message
	for _, m := range s.msgs {
		if m.ConversationID == conversationID {
			all = append(all, m)
		}
	}
	total := len(all)

	// Newest-first pages, each returned chronologically.
	end := total - (page-1)*limit
	if end < 0 {
		end = 0
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	return all[start:end], total, nil
}

func (s *fakeMsgStore) MarkAllRead(_ context.Context, conversationID, reader uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.msgs {
		if m.ConversationID == conversationID && !m.ReadByUser(reader) {
			m.ReadBy = append(m.ReadBy, ReadReceipt{UserID: reader, ReadAt: s.now()})
		}
	}
	return nil
}

func (s *fakeMsgStore) MarkOneRead(_ context.Context, messageID, reader uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.msgs {
		if m.ID == messageID {
			if !m.ReadByUser(reader) {
				m.ReadBy = append(m.ReadBy, ReadReceipt{UserID: reader, ReadAt: s.now()})
			}
			return nil
		}
	}
	return apperr.NotFound("message not found")
}

func (s *fakeMsgStore) Edit(_ context.Context, messageID uuid.UUID, content string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.msgs {
		if m.ID == messageID {
			now := s.now()
			m.Content = content
			m.Edited = true
			m.EditedAt = &now
			return m, nil
		}
	}
	return nil, apperr.NotFound("message not found")
}

func (s *fakeMsgStore) Delete(_ context.Context, messageID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.msgs {
		if m.ID == messageID {
			s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("message not found")
}

func (s *fakeMsgStore) LatestOtherSender(_ context.Context, conversationID, exceptUser uuid.UUID) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.msgs) - 1; i >= 0; i-- {
		m := s.msgs[i]
		if m.ConversationID == conversationID && m.SenderID != exceptUser {
			return m.SenderID, true, nil
		}
	}
	return uuid.Nil, false, nil
}

var (
	_ ConversationStore = (*fakeConvStore)(nil)
	_ MessageStore      = (*fakeMsgStore)(nil)
)

type notifyCall struct {
	Recipient      uuid.UUID
	ConversationID uuid.UUID
	Preview        string
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (f *fakeNotifier) NewMessage(_ context.Context, _ user.Public, recipient, conversationID uuid.UUID, preview string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notifyCall{Recipient: recipient, ConversationID: conversationID, Preview: preview})
}
