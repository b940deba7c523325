package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
)

const DefaultGapKey = "fundledger:settlement_gaps"

// MemoryGapStore keeps settlement gaps in process memory. It is used in tests.
type MemoryGapStore struct {
	mu        sync.Mutex
	Gaps      map[string]domain.SettlementGap
	RecordErr error
}

func (m *MemoryGapStore) Record(ctx context.Context, gap domain.SettlementGap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RecordErr != nil {
		return m.RecordErr
	}
	if m.Gaps == nil {
		m.Gaps = make(map[string]domain.SettlementGap)
	}
	m.Gaps[gap.SettlementRef] = gap
	return nil
}

func (m *MemoryGapStore) List(ctx context.Context) ([]domain.SettlementGap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SettlementGap, 0, len(m.Gaps))
	for _, g := range m.Gaps {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SettlementRef < out[j].SettlementRef })
	return out, nil
}

func (m *MemoryGapStore) Resolve(ctx context.Context, settlementRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Gaps, settlementRef)
	return nil
}

// RedisGapStore keeps one hash field per settlement reference so that a gap
// survives a process restart until the sweeper writes it to the ledger.
type RedisGapStore struct {
	client redis.UniversalClient
	key    string
}

func NewRedisGapStore(client redis.UniversalClient, key string) *RedisGapStore {
	if key == "" {
		key = DefaultGapKey
	}
	return &RedisGapStore{client: client, key: key}
}

func (s *RedisGapStore) Record(ctx context.Context, gap domain.SettlementGap) error {
	payload, err := json.Marshal(gap)
	if err != nil {
		return fmt.Errorf("encode settlement gap: %w", err)
	}
	if err := s.client.HSet(ctx, s.key, gap.SettlementRef, payload).Err(); err != nil {
		return fmt.Errorf("record settlement gap %s: %w", gap.SettlementRef, err)
	}
	return nil
}

func (s *RedisGapStore) List(ctx context.Context) ([]domain.SettlementGap, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list settlement gaps: %w", err)
	}
	gaps := make([]domain.SettlementGap, 0, len(fields))
	for ref, raw := range fields {
		var gap domain.SettlementGap
		if err := json.Unmarshal([]byte(raw), &gap); err != nil {
			log.Printf("level=warn component=gap_store msg=\"skipping unreadable gap\" ref=%s err=%q", ref, err)
			continue
		}
		gaps = append(gaps, gap)
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i].SettlementRef < gaps[j].SettlementRef })
	return gaps, nil
}

func (s *RedisGapStore) Resolve(ctx context.Context, settlementRef string) error {
	return s.client.HDel(ctx, s.key, settlementRef).Err()
}
