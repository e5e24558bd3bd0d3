// Package store is the in-memory persistence collaborator for users, groups,
// messages, and group membership.
package store

import (
	"errors"
	"time"
)

var (
	// ErrUserNotFound is returned when a user id or username does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrGroupNotFound is returned when a group id does not exist.
	ErrGroupNotFound = errors.New("group not found")
	// ErrMessageNotFound is returned when a message id does not exist.
	ErrMessageNotFound = errors.New("message not found")
	// ErrUsernameTaken is returned when registering an existing username.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrGroupExists is returned when creating a group with a taken name.
	ErrGroupExists = errors.New("group name already exists")
)

// User is a registered account.
type User struct {
	ID           int64  `msgpack:"id"`
	Username     string `msgpack:"username"`
	PasswordHash string `msgpack:"password_hash"`
}

// Group is a chat group. MemberIDs are kept sorted.
type Group struct {
	ID        int64     `msgpack:"id"`
	Name      string    `msgpack:"name"`
	CreatedAt time.Time `msgpack:"created_at"`
	MemberIDs []int64   `msgpack:"member_ids"`
}

// Message is a chat message. SenderUsername is resolved on read.
type Message struct {
	ID             int64     `msgpack:"id"`
	Content        string    `msgpack:"content"`
	Timestamp      time.Time `msgpack:"timestamp"`
	SenderID       int64     `msgpack:"sender_id"`
	SenderUsername string    `msgpack:"-"`
	GroupID        int64     `msgpack:"group_id"`
}

// Stats summarizes store contents.
type Stats struct {
	Users    int
	Groups   int
	Messages int
}
