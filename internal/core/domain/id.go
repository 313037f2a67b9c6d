package domain

import (
	"github.com/google/uuid"
)

// SessionID is the gateway-assigned session identifier. Janus hands out
// numbers; they are carried as opaque strings.
type SessionID string

func (id SessionID) String() string {
	return string(id)
}

// HandleID is the gateway-assigned plugin handle identifier, unique within
// its session.
type HandleID string

func (id HandleID) String() string {
	return string(id)
}

type TransactionID string

func NewTransactionID() TransactionID {
	return TransactionID(uuid.New().String())
}

func (id TransactionID) String() string {
	return string(id)
}
