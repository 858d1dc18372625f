// Package records tracks generated documents: one immutable record per
// completed dialogue, owned by the issuing user.
package records

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	kberrors "github.com/docdraft/docdraft/errors"
)

// Record describes one generated document.
type Record struct {
	ID          string    `json:"id" bson:"_id"`
	UserID      string    `json:"user_id" bson:"user_id"`
	TemplateID  string    `json:"template_id" bson:"template_id"`
	StoragePath string    `json:"storage_path" bson:"storage_path"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

// NewRecord builds a record with a fresh opaque identifier.
func NewRecord(userID, templateID, storagePath string) *Record {
	return &Record{
		ID:          uuid.NewString(),
		UserID:      userID,
		TemplateID:  templateID,
		StoragePath: storagePath,
		CreatedAt:   time.Now(),
	}
}

// Validate checks the record before it is persisted.
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: record cannot be nil", kberrors.ErrInvalidInput)
	}
	if r.ID == "" || r.UserID == "" || r.TemplateID == "" {
		return fmt.Errorf("%w: record id, user id and template id are required", kberrors.ErrInvalidInput)
	}
	return nil
}

// Store persists document records. Find is ownership-scoped: a record
// is only visible to the user it belongs to.
type Store interface {
	Create(ctx context.Context, record *Record) error
	Find(ctx context.Context, id, userID string) (*Record, error)
}
