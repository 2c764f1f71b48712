package engine

import "github.com/google/uuid"

// RunIDGenerator names individual pass runs in reports and logs.
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator produces time-ordered run IDs, so reports sort by start
// time. It is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
