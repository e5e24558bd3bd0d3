package store

import (
	"cmp"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

// MemoryStore keeps every record in maps guarded by one RWMutex. Each call is
// its own transaction; returned values are copies.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[int64]*User
	groups   map[int64]*Group
	messages map[int64]*Message
	nextID   struct{ user, group, message int64 }
	now      func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[int64]*User),
		groups:   make(map[int64]*Group),
		messages: make(map[int64]*Message),
		now:      time.Now,
	}
}

func cloneGroup(g *Group) Group {
	out := *g
	out.MemberIDs = append([]int64(nil), g.MemberIDs...)
	return out
}

func (m *MemoryStore) userByNameLocked(username string) *User {
	for _, u := range m.users {
		if u.Username == username {
			return u
		}
	}
	return nil
}

// CreateUser adds a user. Usernames are unique.
func (m *MemoryStore) CreateUser(username, passwordHash string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.userByNameLocked(username) != nil {
		return User{}, fmt.Errorf("create user %q: %w", username, ErrUsernameTaken)
	}
	m.nextID.user++
	u := &User{ID: m.nextID.user, Username: username, PasswordHash: passwordHash}
	m.users[u.ID] = u
	return *u, nil
}

// UserByID looks a user up by id.
func (m *MemoryStore) UserByID(id int64) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return User{}, fmt.Errorf("user %d: %w", id, ErrUserNotFound)
	}
	return *u, nil
}

// UserByName looks a user up by exact username.
func (m *MemoryStore) UserByName(username string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u := m.userByNameLocked(username)
	if u == nil {
		return User{}, fmt.Errorf("user %q: %w", username, ErrUserNotFound)
	}
	return *u, nil
}

// SearchUsers returns users whose name contains filter, case-insensitively,
// ordered by id. An empty filter matches everyone.
func (m *MemoryStore) SearchUsers(filter string) []User {
	m.mu.RLock()
	defer m.mu.RUnlock()

	filter = strings.ToLower(filter)
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		if strings.Contains(strings.ToLower(u.Username), filter) {
			out = append(out, *u)
		}
	}
	slices.SortFunc(out, func(a, b User) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// GroupsForUser returns the groups userID belongs to, ordered by id.
func (m *MemoryStore) GroupsForUser(userID int64) ([]Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.users[userID]; !ok {
		return nil, fmt.Errorf("user %d: %w", userID, ErrUserNotFound)
	}
	out := []Group{}
	for _, g := range m.groups {
		if _, member := slices.BinarySearch(g.MemberIDs, userID); member {
			out = append(out, cloneGroup(g))
		}
	}
	slices.SortFunc(out, func(a, b Group) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// GroupByID looks a group up by id.
func (m *MemoryStore) GroupByID(id int64) (Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.groups[id]
	if !ok {
		return Group{}, fmt.Errorf("group %d: %w", id, ErrGroupNotFound)
	}
	return cloneGroup(g), nil
}

// GroupMembers returns the members of a group, ordered by id.
func (m *MemoryStore) GroupMembers(groupID int64) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("group %d: %w", groupID, ErrGroupNotFound)
	}
	out := make([]User, 0, len(g.MemberIDs))
	for _, id := range g.MemberIDs {
		if u, ok := m.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

// CreateGroup adds a group with the given members. Every member must exist
// and the name must be unused.
func (m *MemoryStore) CreateGroup(name string, memberIDs []int64) (Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, g := range m.groups {
		if g.Name == name {
			return Group{}, fmt.Errorf("create group %q: %w", name, ErrGroupExists)
		}
	}
	members := make([]int64, 0, len(memberIDs))
	for _, id := range memberIDs {
		if _, ok := m.users[id]; !ok {
			return Group{}, fmt.Errorf("create group %q: user %d: %w", name, id, ErrUserNotFound)
		}
		if !slices.Contains(members, id) {
			members = append(members, id)
		}
	}
	slices.Sort(members)

	m.nextID.group++
	g := &Group{ID: m.nextID.group, Name: name, CreatedAt: m.now(), MemberIDs: members}
	m.groups[g.ID] = g
	return cloneGroup(g), nil
}

// AddMember puts userID into groupID. Adding an existing member is a no-op.
func (m *MemoryStore) AddMember(groupID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[groupID]
	if !ok {
		return fmt.Errorf("group %d: %w", groupID, ErrGroupNotFound)
	}
	if _, ok := m.users[userID]; !ok {
		return fmt.Errorf("user %d: %w", userID, ErrUserNotFound)
	}
	if i, found := slices.BinarySearch(g.MemberIDs, userID); !found {
		g.MemberIDs = slices.Insert(g.MemberIDs, i, userID)
	}
	return nil
}

// RemoveMember takes userID out of groupID.
func (m *MemoryStore) RemoveMember(groupID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[groupID]
	if !ok {
		return fmt.Errorf("group %d: %w", groupID, ErrGroupNotFound)
	}
	if i, found := slices.BinarySearch(g.MemberIDs, userID); found {
		g.MemberIDs = slices.Delete(g.MemberIDs, i, i+1)
	}
	return nil
}

// AddMessage stores a message from senderID in groupID.
func (m *MemoryStore) AddMessage(senderID, groupID int64, content string) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sender, ok := m.users[senderID]
	if !ok {
		return Message{}, fmt.Errorf("user %d: %w", senderID, ErrUserNotFound)
	}
	if _, ok := m.groups[groupID]; !ok {
		return Message{}, fmt.Errorf("group %d: %w", groupID, ErrGroupNotFound)
	}

	m.nextID.message++
	msg := &Message{
		ID:        m.nextID.message,
		Content:   content,
		Timestamp: m.now(),
		SenderID:  senderID,
		GroupID:   groupID,
	}
	m.messages[msg.ID] = msg

	out := *msg
	out.SenderUsername = sender.Username
	return out, nil
}

// Messages returns the messages of a group in posting order.
func (m *MemoryStore) Messages(groupID int64) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.groups[groupID]; !ok {
		return nil, fmt.Errorf("group %d: %w", groupID, ErrGroupNotFound)
	}
	out := []Message{}
	for _, msg := range m.messages {
		if msg.GroupID != groupID {
			continue
		}
		cp := *msg
		if u, ok := m.users[msg.SenderID]; ok {
			cp.SenderUsername = u.Username
		}
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b Message) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// DeleteMessage removes a message and returns what was removed.
func (m *MemoryStore) DeleteMessage(id int64) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[id]
	if !ok {
		return Message{}, fmt.Errorf("message %d: %w", id, ErrMessageNotFound)
	}
	delete(m.messages, id)
	return *msg, nil
}

// Stats returns record counts.
func (m *MemoryStore) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{Users: len(m.users), Groups: len(m.groups), Messages: len(m.messages)}
}
