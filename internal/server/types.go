package server

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Tyrowin/pollchat/internal/store"
)

// flexID accepts ids sent either as JSON numbers or numeric strings.
type flexID int64

func (f *flexID) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s", data)
	}
	*f = flexID(id)
	return nil
}

func (f *flexID) value() (int64, bool) {
	if f == nil {
		return 0, false
	}
	return int64(*f), true
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sendMessageRequest struct {
	UserID  *flexID `json:"userId"`
	GroupID *flexID `json:"groupId"`
	Content string  `json:"content"`
}

type deleteMessageRequest struct {
	MessageID *flexID `json:"messageId"`
}

type createChatRequest struct {
	GroupName string   `json:"groupName"`
	CreatorID *flexID  `json:"creatorId"`
	Members   []string `json:"members"`
}

type statusResponse struct {
	Status string `json:"status"`
	Active bool   `json:"active"`
}

type userView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type chatView struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

type messageView struct {
	ID             int64  `json:"id"`
	Content        string `json:"content"`
	Timestamp      string `json:"timestamp"`
	SenderID       int64  `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
	GroupID        int64  `json:"group_id"`
}

func toUserViews(users []store.User) []userView {
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, userView{ID: u.ID, Username: u.Username})
	}
	return out
}

func toMessageViews(msgs []store.Message) []messageView {
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView{
			ID:             m.ID,
			Content:        m.Content,
			Timestamp:      m.Timestamp.Format(time.RFC3339),
			SenderID:       m.SenderID,
			SenderUsername: m.SenderUsername,
			GroupID:        m.GroupID,
		})
	}
	return out
}

// queryID reads a required integer query parameter.
func queryID(values url.Values, key string) (int64, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return 0, badRequest("Missing %s parameter", key)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, badRequest("Invalid %s parameter", key)
	}
	return id, nil
}
