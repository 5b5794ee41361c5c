package core

import (
	"context"
	"io"
)

// Record store collections
const (
	CollectionUsers    = "users"
	CollectionCases    = "cases"
	CollectionProgress = "progress"
)

type (
	// RecordStore is the handle on whichever engine backs the repositories.
	RecordStore interface {
		io.Closer
		Ping(ctx context.Context) error
	}

	// Notifier is told about every committed write, per collection.
	Notifier interface {
		Notify(collection string)
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
