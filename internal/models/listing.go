package models

import "time"

// Listing is a rentable place. Price is the per-night amount in whole currency units.
type Listing struct {
	ID         string    `json:"id" yaml:"id"`
	OwnerID    string    `json:"owner_id" yaml:"owner_id"`
	Title      string    `json:"title" yaml:"title"`
	Price      int64     `json:"price" yaml:"price"`
	HostChatID int64     `json:"host_chat_id,omitempty" yaml:"host_chat_id"`
	CreatedAt  time.Time `json:"created_at" yaml:"-"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"-"`
}
