package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// CategoryDeletedType identifies CategoryDeletedMessage payloads.
const CategoryDeletedType = "category.deleted"

// CategoryDeletedMessage announces that a category was removed. Consumers
// clean up data that referenced it, currently the category's budgets.
type CategoryDeletedMessage struct {
	Type       string    `json:"type"`
	UserID     string    `json:"userId"`
	CategoryID string    `json:"categoryId"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewCategoryDeletedMessage(userID, categoryID string) *CategoryDeletedMessage {
	return &CategoryDeletedMessage{
		Type:       CategoryDeletedType,
		UserID:     userID,
		CategoryID: categoryID,
		Timestamp:  time.Now().UTC(),
	}
}

func (m *CategoryDeletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// CategoryDeletedMessageFromJSON decodes and validates a message body.
func CategoryDeletedMessageFromJSON(data []byte) (*CategoryDeletedMessage, error) {
	var msg CategoryDeletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type != CategoryDeletedType {
		return nil, errors.New("unexpected message type " + msg.Type)
	}
	if msg.UserID == "" || msg.CategoryID == "" {
		return nil, errors.New("message is missing userId or categoryId")
	}
	return &msg, nil
}
