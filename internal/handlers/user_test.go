package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"channel-service/internal/mocks"
	"channel-service/internal/models"
	"channel-service/internal/ws"
)

func setupUserRouter(userRepo *mocks.UserRepositoryMock, channelRepo *mocks.ChannelRepositoryMock) *gin.Engine {
	events := NewEventPublisher(ws.NewHub(), nil, channelRepo)
	handler := NewUserHandler(userRepo, channelRepo, events)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "user-1")
		c.Set("userRole", models.RoleUser)
		c.Next()
	})
	r.GET("/users/me", handler.GetMe)
	r.PUT("/users/me", handler.UpdateMe)
	return r
}

func TestGetMe(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	router := setupUserRouter(userRepo, new(mocks.ChannelRepositoryMock))

	userRepo.On("Get", mock.Anything, "user-1").
		Return(models.User{ID: "user-1", Username: "alice", Role: models.RoleUser}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "alice", resp.Username)
	userRepo.AssertExpectations(t)
}

func TestUpdateMe(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	channelRepo := new(mocks.ChannelRepositoryMock)
	router := setupUserRouter(userRepo, channelRepo)

	userRepo.On("UpdateUsername", mock.Anything, "user-1", "newname").
		Return(models.User{ID: "user-1", Username: "newname", Role: models.RoleUser}, nil).Once()
	channelRepo.On("ListMemberChannelIDs", mock.Anything, "user-1").
		Return([]uuid.UUID{uuid.New()}, nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/users/me", bytes.NewBufferString(`{"username":"newname"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "newname", resp.Username)
	userRepo.AssertExpectations(t)
	channelRepo.AssertExpectations(t)
}

func TestUpdateMeMissingUsername(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	router := setupUserRouter(userRepo, new(mocks.ChannelRepositoryMock))

	req := httptest.NewRequest(http.MethodPut, "/users/me", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	userRepo.AssertNotCalled(t, "UpdateUsername")
}
