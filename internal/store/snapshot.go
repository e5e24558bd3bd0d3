package store

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// snapshot is the on-disk msgpack layout of a MemoryStore.
type snapshot struct {
	Users         []User    `msgpack:"users"`
	Groups        []Group   `msgpack:"groups"`
	Messages      []Message `msgpack:"messages"`
	NextUserID    int64     `msgpack:"next_user_id"`
	NextGroupID   int64     `msgpack:"next_group_id"`
	NextMessageID int64     `msgpack:"next_message_id"`
}

// MarshalSnapshot encodes the full store contents.
func (m *MemoryStore) MarshalSnapshot() ([]byte, error) {
	m.mu.RLock()
	snap := snapshot{
		NextUserID:    m.nextID.user,
		NextGroupID:   m.nextID.group,
		NextMessageID: m.nextID.message,
	}
	for _, u := range m.users {
		snap.Users = append(snap.Users, *u)
	}
	for _, g := range m.groups {
		snap.Groups = append(snap.Groups, cloneGroup(g))
	}
	for _, msg := range m.messages {
		snap.Messages = append(snap.Messages, *msg)
	}
	m.mu.RUnlock()

	return msgpack.Marshal(&snap)
}

// UnmarshalSnapshot replaces the store contents with data.
func (m *MemoryStore) UnmarshalSnapshot(data []byte) error {
	var snap snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.users = make(map[int64]*User, len(snap.Users))
	for i := range snap.Users {
		u := snap.Users[i]
		m.users[u.ID] = &u
	}
	m.groups = make(map[int64]*Group, len(snap.Groups))
	for i := range snap.Groups {
		g := snap.Groups[i]
		m.groups[g.ID] = &g
	}
	m.messages = make(map[int64]*Message, len(snap.Messages))
	for i := range snap.Messages {
		msg := snap.Messages[i]
		m.messages[msg.ID] = &msg
	}
	m.nextID.user = snap.NextUserID
	m.nextID.group = snap.NextGroupID
	m.nextID.message = snap.NextMessageID
	return nil
}

// SaveFile writes a snapshot to path atomically via a temp file and rename.
func (m *MemoryStore) SaveFile(path string) error {
	data, err := m.MarshalSnapshot()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}

	stats := m.Stats()
	log.Printf("Saved snapshot to %s (%d users, %d groups, %d messages)", path, stats.Users, stats.Groups, stats.Messages)
	return nil
}

// LoadFile restores a snapshot from path. A missing file leaves the store
// empty and is not an error.
func (m *MemoryStore) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("No snapshot at %s, starting empty", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if err := m.UnmarshalSnapshot(data); err != nil {
		return err
	}

	stats := m.Stats()
	log.Printf("Loaded snapshot from %s (%d users, %d groups, %d messages)", path, stats.Users, stats.Groups, stats.Messages)
	return nil
}
