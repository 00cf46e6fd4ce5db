package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"channel-service/internal/auth"
	"channel-service/internal/models"
)

type ChannelRepositoryMock struct {
	mock.Mock
}

func (m *ChannelRepositoryMock) Create(ctx context.Context, creatorID, name, description, kind string, memberIDs []string) (models.Channel, error) {
	args := m.Called(ctx, creatorID, name, description, kind, memberIDs)
	var channel models.Channel
	if val := args.Get(0); val != nil {
		channel = val.(models.Channel)
	}
	return channel, args.Error(1)
}

func (m *ChannelRepositoryMock) GetOrCreateDirectMessage(ctx context.Context, userA, userB models.User) (models.Channel, error) {
	args := m.Called(ctx, userA, userB)
	var channel models.Channel
	if val := args.Get(0); val != nil {
		channel = val.(models.Channel)
	}
	return channel, args.Error(1)
}

func (m *ChannelRepositoryMock) Get(ctx context.Context, channelID uuid.UUID) (models.Channel, error) {
	args := m.Called(ctx, channelID)
	var channel models.Channel
	if val := args.Get(0); val != nil {
		channel = val.(models.Channel)
	}
	return channel, args.Error(1)
}

func (m *ChannelRepositoryMock) Update(ctx context.Context, channelID uuid.UUID, name, description string) (models.Channel, error) {
	args := m.Called(ctx, channelID, name, description)
	var channel models.Channel
	if val := args.Get(0); val != nil {
		channel = val.(models.Channel)
	}
	return channel, args.Error(1)
}

func (m *ChannelRepositoryMock) Delete(ctx context.Context, channelID uuid.UUID) error {
	args := m.Called(ctx, channelID)
	return args.Error(0)
}

func (m *ChannelRepositoryMock) ListForUser(ctx context.Context, userID, search string, page, size int) ([]models.Channel, error) {
	args := m.Called(ctx, userID, search, page, size)
	var list []models.Channel
	if val := args.Get(0); val != nil {
		list = val.([]models.Channel)
	}
	return list, args.Error(1)
}

func (m *ChannelRepositoryMock) ListMemberChannelIDs(ctx context.Context, userID string) ([]uuid.UUID, error) {
	args := m.Called(ctx, userID)
	var ids []uuid.UUID
	if val := args.Get(0); val != nil {
		ids = val.([]uuid.UUID)
	}
	return ids, args.Error(1)
}

func (m *ChannelRepositoryMock) IsMember(ctx context.Context, channelID uuid.UUID, userID string) (bool, error) {
	args := m.Called(ctx, channelID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChannelRepositoryMock) AddMember(ctx context.Context, channelID uuid.UUID, userID string) error {
	args := m.Called(ctx, channelID, userID)
	return args.Error(0)
}

func (m *ChannelRepositoryMock) RemoveMember(ctx context.Context, channelID uuid.UUID, userID string) error {
	args := m.Called(ctx, channelID, userID)
	return args.Error(0)
}

func (m *ChannelRepositoryMock) ListMembers(ctx context.Context, channelID uuid.UUID) ([]models.Membership, error) {
	args := m.Called(ctx, channelID)
	var members []models.Membership
	if val := args.Get(0); val != nil {
		members = val.([]models.Membership)
	}
	return members, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, channelID uuid.UUID, authorID, content string, parentID *uuid.UUID) (models.Message, error) {
	args := m.Called(ctx, channelID, authorID, content, parentID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) Get(ctx context.Context, messageID uuid.UUID) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) Edit(ctx context.Context, messageID uuid.UUID, editorID, content string) (models.Message, error) {
	args := m.Called(ctx, messageID, editorID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) Delete(ctx context.Context, messageID uuid.UUID) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) ListThreadRoots(ctx context.Context, channelID uuid.UUID, page, size int) ([]models.Message, error) {
	args := m.Called(ctx, channelID, page, size)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ListReplies(ctx context.Context, parentID uuid.UUID, page, size int) ([]models.Message, error) {
	args := m.Called(ctx, parentID, page, size)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) CountReplies(ctx context.Context, parentIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	args := m.Called(ctx, parentIDs)
	var counts map[uuid.UUID]int
	if val := args.Get(0); val != nil {
		counts = val.(map[uuid.UUID]int)
	}
	return counts, args.Error(1)
}

func (m *MessageRepositoryMock) ListRecentReplies(ctx context.Context, parentIDs []uuid.UUID, perParent int) (map[uuid.UUID][]models.Message, error) {
	args := m.Called(ctx, parentIDs, perParent)
	var replies map[uuid.UUID][]models.Message
	if val := args.Get(0); val != nil {
		replies = val.(map[uuid.UUID][]models.Message)
	}
	return replies, args.Error(1)
}

type ReactionRepositoryMock struct {
	mock.Mock
}

func (m *ReactionRepositoryMock) Add(ctx context.Context, messageID uuid.UUID, userID, emoji string) (models.Reaction, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	var reaction models.Reaction
	if val := args.Get(0); val != nil {
		reaction = val.(models.Reaction)
	}
	return reaction, args.Error(1)
}

func (m *ReactionRepositoryMock) Remove(ctx context.Context, reactionID uuid.UUID, requesterID string) error {
	args := m.Called(ctx, reactionID, requesterID)
	return args.Error(0)
}

func (m *ReactionRepositoryMock) GetByMessageUserEmoji(ctx context.Context, messageID uuid.UUID, userID, emoji string) (models.Reaction, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	var reaction models.Reaction
	if val := args.Get(0); val != nil {
		reaction = val.(models.Reaction)
	}
	return reaction, args.Error(1)
}

func (m *ReactionRepositoryMock) ListForMessage(ctx context.Context, messageID uuid.UUID) ([]models.Reaction, error) {
	args := m.Called(ctx, messageID)
	var reactions []models.Reaction
	if val := args.Get(0); val != nil {
		reactions = val.([]models.Reaction)
	}
	return reactions, args.Error(1)
}

func (m *ReactionRepositoryMock) ListForMessages(ctx context.Context, messageIDs []uuid.UUID) (map[uuid.UUID][]models.Reaction, error) {
	args := m.Called(ctx, messageIDs)
	var reactions map[uuid.UUID][]models.Reaction
	if val := args.Get(0); val != nil {
		reactions = val.(map[uuid.UUID][]models.Reaction)
	}
	return reactions, args.Error(1)
}

func (m *ReactionRepositoryMock) CountByEmoji(ctx context.Context, messageID uuid.UUID, emoji string) (int, error) {
	args := m.Called(ctx, messageID, emoji)
	return args.Int(0), args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetOrCreate(ctx context.Context, userID, username, email string) (models.User, error) {
	args := m.Called(ctx, userID, username, email)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) Get(ctx context.Context, userID string) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetMany(ctx context.Context, userIDs []string) ([]models.User, error) {
	args := m.Called(ctx, userIDs)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) UpdateUsername(ctx context.Context, userID, username string) (models.User, error) {
	args := m.Called(ctx, userID, username)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

type ResolverMock struct {
	mock.Mock
}

func (m *ResolverMock) Resolve(ctx context.Context, token string) (auth.Identity, error) {
	args := m.Called(ctx, token)
	var identity auth.Identity
	if val := args.Get(0); val != nil {
		identity = val.(auth.Identity)
	}
	return identity, args.Error(1)
}
