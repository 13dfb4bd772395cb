package consensus

import (
	"errors"
	"time"
)

type CommandType string

const (
	CommandPut    CommandType = "put"
	CommandDelete CommandType = "delete"
)

// Command is one replicated mutation of the history backend.
type Command struct {
	Type      CommandType `json:"type"`
	Key       string      `json:"key"`
	Value     []byte      `json:"value,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

var ErrNotLeader = errors.New("not the leader")

type snapshotEntry struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

type snapshotData struct {
	Entries []snapshotEntry `json:"entries"`
}
