// Package events publishes memory lifecycle events over NATS. Publication is
// fire-and-forget: a broker outage never fails a tool call.
package events

import (
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
)

// Subjects for lifecycle events.
const (
	SubjectMemoryStored       = "memoryd.memory.stored"
	SubjectMemoryDeleted      = "memoryd.memory.deleted"
	SubjectMemoryConsolidated = "memoryd.memory.consolidated"
)

// StoredEvent announces a newly persisted memory.
type StoredEvent struct {
	MemoryID  string    `json:"memory_id"`
	TypeHint  string    `json:"type_hint"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// DeletedEvent announces a removed memory.
type DeletedEvent struct {
	MemoryID string `json:"memory_id"`
}

// ConsolidatedEvent announces a consolidation commit.
type ConsolidatedEvent struct {
	ConsolidatedID string   `json:"consolidated_id"`
	SourceIDs      []string `json:"source_ids"`
}

// Publisher wraps a NATS connection. A nil Publisher is valid and publishes
// nothing, so callers never branch on configuration.
type Publisher struct {
	nc     *nats.Conn
	logger *log.Logger
}

// NewPublisher wraps an established connection.
func NewPublisher(nc *nats.Conn, logger *log.Logger) *Publisher {
	return &Publisher{nc: nc, logger: logger}
}

// Publish marshals payload and publishes it on subject. Errors are logged,
// never surfaced.
func (p *Publisher) Publish(subject string, payload any) {
	if p == nil || p.nc == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("Failed to marshal event", "subject", subject, "error", err)
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Warn("Failed to publish event", "subject", subject, "error", err)
	}
}
