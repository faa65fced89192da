package app

import (
	"context"
	"errors"
	"strings"

	"swissknife-chat/internal/model"
	"swissknife-chat/internal/repository"
)

var ErrConversationNotFound = errors.New("conversation not found")

type ConversationService struct {
	conversationRepo *repository.ConversationRepository
	messageRepo      *repository.MessageRepository
	passageRepo      *repository.PassageRepository
	historyCache     HistoryCache
}

func NewConversationService(
	conversationRepo *repository.ConversationRepository,
	messageRepo *repository.MessageRepository,
	passageRepo *repository.PassageRepository,
	historyCache HistoryCache,
) *ConversationService {
	return &ConversationService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		passageRepo:      passageRepo,
		historyCache:     historyCache,
	}
}

type CreateConversationInput struct {
	UserID uint
	Title  string
}

func (s *ConversationService) Create(input CreateConversationInput) (*model.Conversation, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "New Chat"
	}

	conversation := &model.Conversation{
		UserID: input.UserID,
		Title:  title,
	}
	if err := s.conversationRepo.Create(conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

func (s *ConversationService) List(userID uint) ([]model.Conversation, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.conversationRepo.ListByUserID(userID)
}

func (s *ConversationService) Rename(userID, conversationID uint, title string) (*model.Conversation, error) {
	if userID == 0 || conversationID == 0 {
		return nil, ErrInvalidInput
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrInvalidInput
	}

	conversation, err := s.conversationRepo.GetByIDAndUserID(conversationID, userID)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}

	if err := s.conversationRepo.UpdateTitle(conversationID, userID, title); err != nil {
		return nil, err
	}
	conversation.Title = title
	return conversation, nil
}

// Delete removes a conversation and everything hanging off it: messages,
// conversation-scoped passages (pinned memories), and the cached history.
// Standalone document passages survive; they are owned by the user, not the
// conversation.
func (s *ConversationService) Delete(userID, conversationID uint) error {
	if userID == 0 || conversationID == 0 {
		return ErrInvalidInput
	}

	conversation, err := s.conversationRepo.GetByIDAndUserID(conversationID, userID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return ErrConversationNotFound
	}

	if err := s.passageRepo.DeleteByConversationID(userID, conversationID); err != nil {
		return err
	}
	if err := s.messageRepo.DeleteByConversationID(conversationID); err != nil {
		return err
	}
	if err := s.conversationRepo.DeleteByIDAndUserID(conversationID, userID); err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(context.Background(), conversationID)
	}
	return nil
}
