package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Tyrowin/pollchat/internal/httpwire"
	"github.com/Tyrowin/pollchat/internal/store"
)

// handleLogin checks credentials. Unknown users are rejected rather than
// created.
func (s *Server) handleLogin(_ context.Context, req *httpwire.Request) (*httpwire.Response, error) {
	var creds credentials
	if !req.Decode(&creds) || creds.Username == "" || creds.Password == "" {
		return nil, badRequest("Username and password are required")
	}

	user, err := s.store.UserByName(creds.Username)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, unauthorized("Invalid username or password")
	}
	if err != nil {
		return nil, err
	}
	if err := s.hasher.Compare(user.PasswordHash, creds.Password); err != nil {
		return nil, storeError(err)
	}

	return httpwire.JSON(http.StatusOK, map[string]int64{"user_id": user.ID}), nil
}

func (s *Server) handleRegister(_ context.Context, req *httpwire.Request) (*httpwire.Response, error) {
	var creds credentials
	if !req.Decode(&creds) || strings.TrimSpace(creds.Username) == "" || creds.Password == "" {
		return nil, badRequest("Username and password are required")
	}

	hash, err := s.hasher.Hash(creds.Password)
	if err != nil {
		return nil, err
	}
	user, err := s.store.CreateUser(strings.TrimSpace(creds.Username), hash)
	if err != nil {
		return nil, storeError(err)
	}

	return httpwire.JSON(http.StatusOK, map[string]any{
		"user_id": user.ID,
		"message": "User registered successfully",
	}), nil
}

// handleUsers lists users, optionally filtered by a username substring.
func (s *Server) handleUsers(_ context.Context, req *httpwire.Request) (*httpwire.Response, error) {
	users := s.store.SearchUsers(req.Query().Get("username"))
	return httpwire.JSON(http.StatusOK, map[string]any{"users": toUserViews(users)}), nil
}

func (s *Server) handleChats(_ context.Context, req *httpwire.Request) (*httpwire.Response, error) {
	userID, err := queryID(req.Query(), "userId")
	if err != nil {
		return nil, err
	}

	groups, err := s.store.GroupsForUser(userID)
	if err != nil {
		return nil, storeError(err)
	}

	chats := make([]chatView, 0, len(groups))
	for _, g := range groups {
		members, err := s.store.GroupMembers(g.ID)
		if err != nil {
			return nil, storeError(err)
		}
		names := make([]string, 0, len(members))
		for _, m := range members {
			names = append(names, m.Username)
		}
		chats = append(chats, chatView{ID: g.ID, Name: g.Name, Members: names})
	}

	return httpwire.JSON(http.StatusOK, map[string]any{"user_id": userID, "chats": chats}), nil
}

// handleCreateChat creates a group owned by creatorId. Member usernames that
// do not exist are skipped and reported in "warning".
func (s *Server) handleCreateChat(_ context.Context, req *httpwire.Request) (*httpwire.Response, error) {
	var body createChatRequest
	req.Decode(&body)
	name := strings.TrimSpace(body.GroupName)
	creatorID, ok := body.CreatorID.value()
	if name == "" || !ok {
		return nil, badRequest("groupName and creatorId are required")
	}

	creator, err := s.store.UserByID(creatorID)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, notFound("Creator not found")
	}
	if err != nil {
		return nil, err
	}

	memberIDs := []int64{creator.ID}
	memberNames := []string{creator.Username}
	var missing []string
	for _, username := range body.Members {
		username = strings.TrimSpace(username)
		if username == "" || username == creator.Username {
			continue
		}
		u, err := s.store.UserByName(username)
		if errors.Is(err, store.ErrUserNotFound) {
			missing = append(missing, username)
			continue
		}
		if err != nil {
			return nil, err
		}
		memberIDs = append(memberIDs, u.ID)
		memberNames = append(memberNames, u.Username)
	}

	group, err := s.store.CreateGroup(name, memberIDs)
	if err != nil {
		return nil, storeError(err)
	}

	out := map[string]any{
		"group_id":   group.ID,
		"group_name": group.Name,
		"creator_id": creator.ID,
		"members":    memberNames,
	}
	if len(missing) > 0 {
		out["warning"] = "Some users were not found: " + strings.Join(missing, ", ")
	}
	return httpwire.JSON(http.StatusOK, out), nil
}

func (s *Server) handleGroupUsers(_ context.Context, req *httpwire.Request) (*httpwire.Response, error) {
	groupID, err := queryID(req.Query(), "groupId")
	if err != nil {
		return nil, err
	}
	users, err := s.store.GroupMembers(groupID)
	if err != nil {
		return nil, storeError(err)
	}
	return httpwire.JSON(http.StatusOK, map[string]any{"group_id": groupID, "users": toUserViews(users)}), nil
}

func (s *Server) handleGetMessages(_ context.Context, req *httpwire.Request) (*httpwire.Response, error) {
	groupID, err := queryID(req.Query(), "groupId")
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.Messages(groupID)
	if err != nil {
		return nil, storeError(err)
	}
	return httpwire.JSON(http.StatusOK, map[string]any{"group_id": groupID, "messages": toMessageViews(msgs)}), nil
}

// handlePostMessage stores a message and wakes the group's long-pollers.
func (s *Server) handlePostMessage(_ context.Context, req *httpwire.Request) (*httpwire.Response, error) {
	var body sendMessageRequest
	req.Decode(&body)
	userID, okUser := body.UserID.value()
	groupID, okGroup := body.GroupID.value()
	if !okUser || !okGroup || strings.TrimSpace(body.Content) == "" {
		return nil, badRequest("userId, groupId and content are required")
	}

	group, err := s.store.GroupByID(groupID)
	if err != nil {
		return nil, storeError(err)
	}
	msg, err := s.store.AddMessage(userID, groupID, body.Content)
	if err != nil {
		return nil, storeError(err)
	}

	s.broker.NotifyGroup(group.Name)

	return httpwire.JSON(http.StatusOK, map[string]any{
		"message":    "Message sent successfully",
		"message_id": msg.ID,
	}), nil
}

func (s *Server) handleDeleteMessage(_ context.Context, req *httpwire.Request) (*httpwire.Response, error) {
	var body deleteMessageRequest
	req.Decode(&body)
	messageID, ok := body.MessageID.value()
	if !ok {
		return nil, badRequest("messageId is required")
	}
	if _, err := s.store.DeleteMessage(messageID); err != nil {
		return nil, storeError(err)
	}
	return httpwire.JSON(http.StatusOK, map[string]string{"message": "Message deleted successfully"}), nil
}
