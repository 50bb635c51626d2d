package order

import "deltacar/server/internal/storage"

// Order is stored exactly as the storefront posted it.
type Order = storage.Document

// Result descriptors mirror what the storefront already parses.

type InsertResult struct {
	Acknowledged bool   `json:"acknowledged"`
	InsertedID   string `json:"insertedId"`
}

type UpdateResult struct {
	Acknowledged  bool    `json:"acknowledged"`
	MatchedCount  int64   `json:"matchedCount"`
	ModifiedCount int64   `json:"modifiedCount"`
	UpsertedID    *string `json:"upsertedId"`
	UpsertedCount int64   `json:"upsertedCount"`
}

type DeleteResult struct {
	Acknowledged bool  `json:"acknowledged"`
	DeletedCount int64 `json:"deletedCount"`
}

func ownerEmail(o Order) *string {
	if email, ok := o["email"].(string); ok {
		return &email
	}
	return nil
}
