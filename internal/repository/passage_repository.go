package repository

import (
	"fmt"

	"gorm.io/gorm"

	"swissknife-chat/internal/model"
)

// PassageRepository persists retrievable passages. Every read is scoped by
// user_id at the SQL level; there is no unscoped listing on purpose.
type PassageRepository struct {
	db *gorm.DB
}

func NewPassageRepository(db *gorm.DB) *PassageRepository {
	return &PassageRepository{db: db}
}

// CreateBatch is the only write path; passages always land as a whole
// document or a whole summary, never row by row.
func (r *PassageRepository) CreateBatch(passages []model.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	if err := r.db.Create(&passages).Error; err != nil {
		return fmt.Errorf("create passages batch failed: %w", err)
	}
	return nil
}

func (r *PassageRepository) ListByUserID(userID uint) ([]model.Passage, error) {
	var passages []model.Passage
	if err := r.db.Where("user_id = ?", userID).
		Order("id ASC").Find(&passages).Error; err != nil {
		return nil, fmt.Errorf("list passages failed: %w", err)
	}
	return passages, nil
}

func (r *PassageRepository) ListByUserIDAndConversationID(userID, conversationID uint) ([]model.Passage, error) {
	var passages []model.Passage
	if err := r.db.Where("user_id = ? AND conversation_id = ?", userID, conversationID).
		Order("id ASC").Find(&passages).Error; err != nil {
		return nil, fmt.Errorf("list passages by conversation failed: %w", err)
	}
	return passages, nil
}

// DeleteByConversationID removes conversation-scoped passages (memories and
// conversation uploads) as part of the conversation delete cascade.
// Standalone document passages (conversation_id = 0) are never touched.
func (r *PassageRepository) DeleteByConversationID(userID, conversationID uint) error {
	if conversationID == 0 {
		return nil
	}
	if err := r.db.Where("user_id = ? AND conversation_id = ?", userID, conversationID).
		Delete(&model.Passage{}).Error; err != nil {
		return fmt.Errorf("delete passages by conversation failed: %w", err)
	}
	return nil
}
