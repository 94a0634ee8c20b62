package domain

import (
	"context"
	"time"
)

// RawDocument is one CAP file waiting to be transformed.
type RawDocument struct {
	Path      string
	Data      []byte // optional; read from Path when nil
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}
