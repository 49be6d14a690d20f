package models

import (
	"time"
)

// Object is one immutable version row of the versioned object store.
// The logical primary key is (ObjectID, Updated): a mutation never touches
// an existing row, it appends a new one with the same ObjectID and a later
// Updated.
type Object struct {
	ObjectID string    `json:"id" gorm:"primaryKey;type:char(24)"`
	Updated  time.Time `json:"updated" gorm:"primaryKey;type:timestamp(3) with time zone"`
	Document string    `json:"document" gorm:"type:jsonb;not null"`

	// Ad hoc filterable fields lifted out of the document for auxiliary
	// listings. No secondary schema exists beyond these.
	InReplyTo *string `json:"inReplyTo,omitempty" gorm:"type:char(24);index"`
	Context   *string `json:"context,omitempty" gorm:"type:char(24);index"`
	Actor     *string `json:"actor,omitempty" gorm:"type:char(24);index"`
}
