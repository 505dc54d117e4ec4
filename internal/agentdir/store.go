package agentdir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/stagecall/voicedemo/internal/types"
)

// ErrAgentNotFound is returned when the directory has no entry for an agent
var ErrAgentNotFound = errors.New("agent not found")

// Store is the agent directory backing the config endpoint
type Store interface {
	GetAgent(ctx context.Context, agentID string) (types.AgentRecord, error)
	PutAgent(ctx context.Context, record types.AgentRecord) error
	ListAgents(ctx context.Context) ([]types.AgentRecord, error)
	// ListCallable returns only agents with a complete vendor configuration
	ListCallable(ctx context.Context) ([]types.AgentRecord, error)
}

// MemoryStore is an in-memory directory for development and tests
type MemoryStore struct {
	mu     sync.RWMutex
	agents map[string]types.AgentRecord
}

// NewMemoryStore creates an empty in-memory directory
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{agents: make(map[string]types.AgentRecord)}
}

// NewMemoryStoreFromFile seeds a directory from a JSON file containing an
// array of agent records
func NewMemoryStoreFromFile(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agents file: %w", err)
	}

	var records []types.AgentRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse agents file: %w", err)
	}

	store := NewMemoryStore()
	for _, record := range records {
		if record.AgentID == "" {
			return nil, fmt.Errorf("agents file entry missing agentId")
		}
		store.agents[record.AgentID] = record
	}
	return store, nil
}

func (s *MemoryStore) GetAgent(_ context.Context, agentID string) (types.AgentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.agents[agentID]
	if !ok {
		return types.AgentRecord{}, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	return record, nil
}

func (s *MemoryStore) PutAgent(_ context.Context, record types.AgentRecord) error {
	if record.AgentID == "" {
		return fmt.Errorf("agent record missing agentId")
	}
	s.mu.Lock()
	s.agents[record.AgentID] = record
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListAgents(_ context.Context) ([]types.AgentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]types.AgentRecord, 0, len(s.agents))
	for _, record := range s.agents {
		records = append(records, record)
	}
	return records, nil
}

func (s *MemoryStore) ListCallable(_ context.Context) ([]types.AgentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []types.AgentRecord
	for _, record := range s.agents {
		if record.Credentials().Valid() {
			records = append(records, record)
		}
	}
	return records, nil
}
