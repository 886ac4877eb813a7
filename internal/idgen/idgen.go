// Package idgen centralizes id generation so every package uses the same
// id shape for the same kind of entity: opaque UUIDs for records with no
// inherent ordering, ULIDs for records an operator will want to scan in
// chronological order.
package idgen

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/arcwatch/sentinel/internal/clock"
)

// UUID returns a new random UUID string, used for decision, override,
// milestone, failure, and propagation-record ids.
func UUID() string {
	return uuid.NewString()
}

// ULID returns a new lexically-sortable id seeded from clk.Now(), used for
// incident ids and runbook execution ids where chronological scan order
// matters for audit queries.
func ULID(clk clock.Clock) string {
	return ulid.MustNew(ulid.Timestamp(clk.Now()), ulid.DefaultEntropy()).String()
}
