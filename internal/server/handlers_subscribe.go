package server

import (
	"context"
	"net/http"
	"time"

	"github.com/Tyrowin/pollchat/internal/httpwire"
	"github.com/Tyrowin/pollchat/internal/store"
)

const defaultStatusGroup = "default"

func noChange() *httpwire.Response {
	return &httpwire.Response{Status: http.StatusNoContent}
}

func statusWord(alive bool) string {
	if alive {
		return "alive"
	}
	return "down"
}

// handleSubscribeStatus long-polls one group. It answers 200 with the current
// status when the group is notified and 204 when the poll window closes.
func (s *Server) handleSubscribeStatus(ctx context.Context, req *httpwire.Request) (*httpwire.Response, error) {
	group := req.Query().Get("group")
	if group == "" {
		group = defaultStatusGroup
	}

	if !s.broker.WaitOnGroup(ctx, group, s.cfg.PollTimeout) {
		return noChange(), nil
	}

	st := s.state.Snapshot()
	return httpwire.JSON(http.StatusOK, map[string]any{
		"status": statusWord(st.Alive),
		"active": st.Active,
		"change": true,
		"group":  group,
	}), nil
}

// handleSubscribeUser long-polls every group the user belongs to. Membership
// is re-read after each wake, so a notification for a group the user has
// since left does not end the poll.
func (s *Server) handleSubscribeUser(ctx context.Context, req *httpwire.Request) (*httpwire.Response, error) {
	userID, err := queryID(req.Query(), "user_id")
	if err != nil {
		return nil, err
	}
	if _, err := s.store.UserByID(userID); err != nil {
		return nil, storeError(err)
	}

	deadline := time.Now().Add(s.cfg.PollTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return noChange(), nil
		}

		groups, err := s.store.GroupsForUser(userID)
		if err != nil {
			return nil, storeError(err)
		}

		notified, name := s.broker.WaitOnAnyOf(ctx, groupNames(groups), remaining)
		if !notified {
			return noChange(), nil
		}

		groups, err = s.store.GroupsForUser(userID)
		if err != nil {
			return nil, storeError(err)
		}
		for _, g := range groups {
			if g.Name == name {
				return s.userChange(userID, g, groups)
			}
		}
	}
}

func (s *Server) userChange(userID int64, notified store.Group, groups []store.Group) (*httpwire.Response, error) {
	msgs, err := s.store.Messages(notified.ID)
	if err != nil {
		return nil, storeError(err)
	}
	total := len(msgs)
	if n := s.cfg.RecentMessages; n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}

	return httpwire.JSON(http.StatusOK, map[string]any{
		"change":          true,
		"user_id":         userID,
		"notified_group":  notified.Name,
		"user_groups":     groupNames(groups),
		"recent_messages": toMessageViews(msgs),
		"messages_count":  total,
	}), nil
}

func groupNames(groups []store.Group) []string {
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	return names
}
