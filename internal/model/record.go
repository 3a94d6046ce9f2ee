package model

import (
	"errors"
	"time"
)

var ErrInvalidRecord = errors.New("invalid record")

// Record is one repository as reported by the search source.
type Record struct {
	OwnerName       string     `json:"owner_name"`
	EntityName      string     `json:"repo_name"`
	PopularityScore int        `json:"stars"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
}

// Key is the natural key, owner/name. Case-sensitive.
func (r Record) Key() string {
	return r.OwnerName + "/" + r.EntityName
}

func (r Record) Validate() error {
	switch {
	case r.OwnerName == "":
		return errors.Join(ErrInvalidRecord, errors.New("owner name is empty"))
	case r.EntityName == "":
		return errors.Join(ErrInvalidRecord, errors.New("repository name is empty"))
	case r.PopularityScore < 0:
		return errors.Join(ErrInvalidRecord, errors.New("negative star count"))
	}
	return nil
}
