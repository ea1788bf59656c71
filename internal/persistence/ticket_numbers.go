package persistence

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

const ticketSequenceKey = "ticketseq:%s:%s"

// FormatTicketNumber renders a sequence value for a record kind, e.g. INC-000042.
func FormatTicketNumber(kind string, seq int64) string {
	prefix := strings.ToUpper(kind)
	switch strings.ToLower(kind) {
	case "incident":
		prefix = "INC"
	case "service_request":
		prefix = "REQ"
	}
	return fmt.Sprintf("%s-%06d", prefix, seq)
}

// RedisTicketNumbers issues ticket numbers from a per-org Redis counter.
type RedisTicketNumbers struct {
	client *redis.Client
}

// NewRedisTicketNumbers builds the generator.
func NewRedisTicketNumbers(r *Redis) *RedisTicketNumbers {
	return &RedisTicketNumbers{client: r.client}
}

// Next increments the org/kind counter. INCR never hands out the same value twice.
func (g *RedisTicketNumbers) Next(ctx context.Context, orgID, kind string) (string, error) {
	seq, err := g.client.Incr(ctx, fmt.Sprintf(ticketSequenceKey, orgID, kind)).Result()
	if err != nil {
		return "", fmt.Errorf("next ticket number: %w", err)
	}
	return FormatTicketNumber(kind, seq), nil
}

// MemoryTicketNumbers is an in-process counter used when Redis is unavailable.
type MemoryTicketNumbers struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewMemoryTicketNumbers builds the generator.
func NewMemoryTicketNumbers() *MemoryTicketNumbers {
	return &MemoryTicketNumbers{counters: make(map[string]int64)}
}

func (g *MemoryTicketNumbers) Next(_ context.Context, orgID, kind string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := fmt.Sprintf(ticketSequenceKey, orgID, kind)
	g.counters[key]++
	return FormatTicketNumber(kind, g.counters[key]), nil
}
