package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"channel-service/internal/mocks"
	"channel-service/internal/models"
	"channel-service/internal/repositories"
	"channel-service/internal/ws"
)

type messageMocks struct {
	channelRepo  *mocks.ChannelRepositoryMock
	messageRepo  *mocks.MessageRepositoryMock
	reactionRepo *mocks.ReactionRepositoryMock
	userRepo     *mocks.UserRepositoryMock
}

func setupMessageRouter(m messageMocks, userID, role string) *gin.Engine {
	events := NewEventPublisher(ws.NewHub(), nil, m.channelRepo)
	handler := NewMessageHandler(m.channelRepo, m.messageRepo, m.reactionRepo, m.userRepo, events)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", userID)
		c.Set("userRole", role)
		c.Next()
	})
	r.POST("/messages", handler.PostMessage)
	r.GET("/messages/channel/:channel_id", handler.ListChannelRoots)
	r.GET("/messages/thread/:parent_id", handler.ListReplies)
	r.PUT("/messages/:message_id", handler.EditMessage)
	r.DELETE("/messages/:message_id", handler.DeleteMessage)
	return r
}

func newMessageMocks() messageMocks {
	return messageMocks{
		channelRepo:  new(mocks.ChannelRepositoryMock),
		messageRepo:  new(mocks.MessageRepositoryMock),
		reactionRepo: new(mocks.ReactionRepositoryMock),
		userRepo:     new(mocks.UserRepositoryMock),
	}
}

func TestPostMessageSuccess(t *testing.T) {
	m := newMessageMocks()
	router := setupMessageRouter(m, "user-1", models.RoleUser)

	channelID := uuid.New()
	msg := models.Message{ID: uuid.New(), ChannelID: channelID, CreatedBy: "user-1", Content: "hello"}

	m.channelRepo.On("IsMember", mock.Anything, channelID, "user-1").Return(true, nil).Once()
	m.messageRepo.On("Create", mock.Anything, channelID, "user-1", "hello", (*uuid.UUID)(nil)).Return(msg, nil).Once()
	m.channelRepo.On("ListMembers", mock.Anything, channelID).Return([]models.Membership{{ChannelID: channelID, UserID: "user-1"}}, nil).Once()

	body := bytes.NewBufferString(`{"channel_id":"` + channelID.String() + `","content":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp models.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, msg.ID, resp.ID)
	m.channelRepo.AssertExpectations(t)
	m.messageRepo.AssertExpectations(t)
}

func TestPostMessageMirroredToBroker(t *testing.T) {
	m := newMessageMocks()
	mirror := new(mocks.PublisherMock)
	events := NewEventPublisher(ws.NewHub(), mirror, m.channelRepo)
	handler := NewMessageHandler(m.channelRepo, m.messageRepo, m.reactionRepo, m.userRepo, events)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userID", "user-1")
		c.Set("userRole", models.RoleUser)
		c.Next()
	})
	router.POST("/messages", handler.PostMessage)

	channelID := uuid.New()
	msg := models.Message{ID: uuid.New(), ChannelID: channelID, CreatedBy: "user-1", Content: "hello"}

	m.channelRepo.On("IsMember", mock.Anything, channelID, "user-1").Return(true, nil).Once()
	m.messageRepo.On("Create", mock.Anything, channelID, "user-1", "hello", (*uuid.UUID)(nil)).Return(msg, nil).Once()
	m.channelRepo.On("ListMembers", mock.Anything, channelID).Return([]models.Membership{{ChannelID: channelID, UserID: "user-1"}}, nil).Once()
	mirror.On("Publish", mock.Anything, "channel_events."+models.EventMessageCreated,
		mock.MatchedBy(func(e models.Event) bool {
			return e.Type == models.EventMessageCreated && e.ChannelID == channelID && e.UserID == "user-1"
		})).Return(nil).Once()

	body := bytes.NewBufferString(`{"channel_id":"` + channelID.String() + `","content":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	mirror.AssertExpectations(t)
}

func TestPostMessageMirrorFailureDoesNotFailRequest(t *testing.T) {
	m := newMessageMocks()
	mirror := new(mocks.PublisherMock)
	events := NewEventPublisher(ws.NewHub(), mirror, m.channelRepo)
	handler := NewMessageHandler(m.channelRepo, m.messageRepo, m.reactionRepo, m.userRepo, events)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userID", "user-1")
		c.Set("userRole", models.RoleUser)
		c.Next()
	})
	router.POST("/messages", handler.PostMessage)

	channelID := uuid.New()
	msg := models.Message{ID: uuid.New(), ChannelID: channelID, CreatedBy: "user-1", Content: "hello"}

	m.channelRepo.On("IsMember", mock.Anything, channelID, "user-1").Return(true, nil).Once()
	m.messageRepo.On("Create", mock.Anything, channelID, "user-1", "hello", (*uuid.UUID)(nil)).Return(msg, nil).Once()
	m.channelRepo.On("ListMembers", mock.Anything, channelID).Return([]models.Membership{}, nil).Once()
	mirror.On("Publish", mock.Anything, "channel_events."+models.EventMessageCreated, mock.Anything).
		Return(assert.AnError).Once()

	body := bytes.NewBufferString(`{"channel_id":"` + channelID.String() + `","content":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// The write committed; a broker failure never surfaces to the caller.
	require.Equal(t, http.StatusCreated, rec.Code)
	mirror.AssertExpectations(t)
}

func TestPostMessageNotMember(t *testing.T) {
	m := newMessageMocks()
	router := setupMessageRouter(m, "user-1", models.RoleUser)

	channelID := uuid.New()
	m.channelRepo.On("IsMember", mock.Anything, channelID, "user-1").Return(false, nil).Once()
	m.channelRepo.On("Get", mock.Anything, channelID).Return(models.Channel{ID: channelID, Kind: models.ChannelPublic}, nil).Once()

	body := bytes.NewBufferString(`{"channel_id":"` + channelID.String() + `","content":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	m.messageRepo.AssertNotCalled(t, "Create")
}

func TestPostMessageUnknownChannel(t *testing.T) {
	m := newMessageMocks()
	router := setupMessageRouter(m, "user-1", models.RoleUser)

	channelID := uuid.New()
	m.channelRepo.On("IsMember", mock.Anything, channelID, "user-1").Return(false, nil).Once()
	m.channelRepo.On("Get", mock.Anything, channelID).Return(models.Channel{}, repositories.ErrChannelNotFound).Once()

	body := bytes.NewBufferString(`{"channel_id":"` + channelID.String() + `","content":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostMessageReplyToReply(t *testing.T) {
	m := newMessageMocks()
	router := setupMessageRouter(m, "user-1", models.RoleUser)

	channelID := uuid.New()
	parentID := uuid.New()
	m.channelRepo.On("IsMember", mock.Anything, channelID, "user-1").Return(true, nil).Once()
	m.messageRepo.On("Create", mock.Anything, channelID, "user-1", "hi", &parentID).
		Return(models.Message{}, repositories.ErrParentNotRoot).Once()

	body := bytes.NewBufferString(`{"channel_id":"` + channelID.String() + `","content":"hi","parent_id":"` + parentID.String() + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMessageParentMissing(t *testing.T) {
	m := newMessageMocks()
	router := setupMessageRouter(m, "user-1", models.RoleUser)

	channelID := uuid.New()
	parentID := uuid.New()
	m.channelRepo.On("IsMember", mock.Anything, channelID, "user-1").Return(true, nil).Once()
	m.messageRepo.On("Create", mock.Anything, channelID, "user-1", "hi", &parentID).
		Return(models.Message{}, repositories.ErrParentNotFound).Once()

	body := bytes.NewBufferString(`{"channel_id":"` + channelID.String() + `","content":"hi","parent_id":"` + parentID.String() + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostMessageContentTooLong(t *testing.T) {
	m := newMessageMocks()
	router := setupMessageRouter(m, "user-1", models.RoleUser)

	channelID := uuid.New()
	long := strings.Repeat("a", models.MaxMessageLength+1)
	m.channelRepo.On("IsMember", mock.Anything, channelID, "user-1").Return(true, nil).Once()
	m.messageRepo.On("Create", mock.Anything, channelID, "user-1", long, (*uuid.UUID)(nil)).
		Return(models.Message{}, repositories.ErrContentTooLong).Once()

	body := bytes.NewBufferString(`{"channel_id":"` + channelID.String() + `","content":"` + long + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListChannelRootsPublicNonMember(t *testing.T) {
	m := newMessageMocks()
	router := setupMessageRouter(m, "user-1", models.RoleUser)

	channelID := uuid.New()
	rootID := uuid.New()
	root := models.Message{ID: rootID, ChannelID: channelID, CreatedBy: "user-2", Content: "hi"}
	reply := models.Message{ID: uuid.New(), ChannelID: channelID, CreatedBy: "user-3", Content: "yo", ParentID: &rootID}

	m.channelRepo.On("Get", mock.Anything, channelID).Return(models.Channel{ID: channelID, Kind: models.ChannelPublic}, nil).Once()
	m.messageRepo.On("ListThreadRoots", mock.Anything, channelID, 0, 20).Return([]models.Message{root}, nil).Once()
	m.messageRepo.On("CountReplies", mock.Anything, []uuid.UUID{rootID}).Return(map[uuid.UUID]int{rootID: 1}, nil).Once()
	m.messageRepo.On("ListRecentReplies", mock.Anything, []uuid.UUID{rootID}, recentReplyPreview).
		Return(map[uuid.UUID][]models.Message{rootID: {reply}}, nil).Once()
	m.reactionRepo.On("ListForMessages", mock.Anything, []uuid.UUID{rootID}).
		Return(map[uuid.UUID][]models.Reaction{rootID: {{ID: uuid.New(), MessageID: rootID, UserID: "user-3", Emoji: "👍"}}}, nil).Once()
	m.userRepo.On("GetMany", mock.Anything, []string{"user-2", "user-3"}).
		Return([]models.User{{ID: "user-2", Username: "bob"}, {ID: "user-3", Username: "carol"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/messages/channel/"+channelID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []models.ThreadRoot `json:"messages"`
		Authors  map[string]string   `json:"authors"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, 1, resp.Messages[0].ReplyCount)
	assert.Len(t, resp.Messages[0].RecentReplies, 1)
	assert.Len(t, resp.Messages[0].Reactions, 1)
	assert.Equal(t, "bob", resp.Authors["user-2"])
	m.messageRepo.AssertExpectations(t)
	m.userRepo.AssertExpectations(t)
}

func TestListChannelRootsPrivateNonMember(t *testing.T) {
	m := newMessageMocks()
	router := setupMessageRouter(m, "user-1", models.RoleUser)

	channelID := uuid.New()
	m.channelRepo.On("Get", mock.Anything, channelID).Return(models.Channel{ID: channelID, Kind: models.ChannelPrivate}, nil).Once()
	m.channelRepo.On("IsMember", mock.Anything, channelID, "user-1").Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/messages/channel/"+channelID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	m.messageRepo.AssertNotCalled(t, "ListThreadRoots")
}

func TestListRepliesParentMissing(t *testing.T) {
	m := newMessageMocks()
	router := setupMessageRouter(m, "user-1", models.RoleUser)

	parentID := uuid.New()
	m.messageRepo.On("Get", mock.Anything, parentID).Return(models.Message{}, repositories.ErrMessageNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/messages/thread/"+parentID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRepliesSuccess(t *testing.T) {
	m := newMessageMocks()
	router := setupMessageRouter(m, "user-1", models.RoleUser)

	channelID := uuid.New()
	parentID := uuid.New()
	parent := models.Message{ID: parentID, ChannelID: channelID, CreatedBy: "user-2"}

	m.messageRepo.On("Get", mock.Anything, parentID).Return(parent, nil).Once()
	m.channelRepo.On("Get", mock.Anything, channelID).Return(models.Channel{ID: channelID, Kind: models.ChannelPrivate}, nil).Once()
	m.channelRepo.On("IsMember", mock.Anything, channelID, "user-1").Return(true, nil).Once()
	m.messageRepo.On("ListReplies", mock.Anything, parentID, 0, 20).
		Return([]models.Message{{ID: uuid.New(), ChannelID: channelID, ParentID: &parentID}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/messages/thread/"+parentID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	m.messageRepo.AssertExpectations(t)
}

func TestEditMessageNotAuthor(t *testing.T) {
	m := newMessageMocks()
	router := setupMessageRouter(m, "user-1", models.RoleUser)

	messageID := uuid.New()
	m.messageRepo.On("Edit", mock.Anything, messageID, "user-1", "new text").
		Return(models.Message{}, repositories.ErrNotMessageAuthor).Once()

	req := httptest.NewRequest(http.MethodPut, "/messages/"+messageID.String(), bytes.NewBufferString(`{"content":"new text"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEditMessageSuccess(t *testing.T) {
	m := newMessageMocks()
	router := setupMessageRouter(m, "user-1", models.RoleUser)

	messageID := uuid.New()
	channelID := uuid.New()
	edited := models.Message{ID: messageID, ChannelID: channelID, CreatedBy: "user-1", Content: "new text", IsEdited: true}
	m.messageRepo.On("Edit", mock.Anything, messageID, "user-1", "new text").Return(edited, nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/messages/"+messageID.String(), bytes.NewBufferString(`{"content":"new text"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.IsEdited)
}

func TestDeleteMessageByAuthor(t *testing.T) {
	m := newMessageMocks()
	router := setupMessageRouter(m, "user-1", models.RoleUser)

	messageID := uuid.New()
	channelID := uuid.New()
	m.messageRepo.On("Get", mock.Anything, messageID).
		Return(models.Message{ID: messageID, ChannelID: channelID, CreatedBy: "user-1"}, nil).Once()
	m.messageRepo.On("Delete", mock.Anything, messageID).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/messages/"+messageID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	m.messageRepo.AssertExpectations(t)
}

func TestDeleteMessageByChannelCreator(t *testing.T) {
	m := newMessageMocks()
	router := setupMessageRouter(m, "user-1", models.RoleUser)

	messageID := uuid.New()
	channelID := uuid.New()
	m.messageRepo.On("Get", mock.Anything, messageID).
		Return(models.Message{ID: messageID, ChannelID: channelID, CreatedBy: "user-2"}, nil).Once()
	m.channelRepo.On("Get", mock.Anything, channelID).
		Return(models.Channel{ID: channelID, CreatedBy: "user-1"}, nil).Once()
	m.messageRepo.On("Delete", mock.Anything, messageID).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/messages/"+messageID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	m.messageRepo.AssertExpectations(t)
}

func TestDeleteMessageForbidden(t *testing.T) {
	m := newMessageMocks()
	router := setupMessageRouter(m, "user-1", models.RoleUser)

	messageID := uuid.New()
	channelID := uuid.New()
	m.messageRepo.On("Get", mock.Anything, messageID).
		Return(models.Message{ID: messageID, ChannelID: channelID, CreatedBy: "user-2"}, nil).Once()
	m.channelRepo.On("Get", mock.Anything, channelID).
		Return(models.Channel{ID: channelID, CreatedBy: "user-9"}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/messages/"+messageID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	m.messageRepo.AssertNotCalled(t, "Delete")
}
