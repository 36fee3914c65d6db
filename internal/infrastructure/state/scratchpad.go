package state

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Scratchpad is the volatile key-value blackboard shared between the
// planner, the scratchpad tool and swarm workers. It lives for the
// process lifetime; nothing here is persisted.
type Scratchpad struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewScratchpad() *Scratchpad {
	return &Scratchpad{data: make(map[string]string)}
}

func (s *Scratchpad) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

func (s *Scratchpad) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, exists := s.data[key]
	return v, exists
}

func (s *Scratchpad) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Scratchpad) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]string)
}

// StateString renders the pad for the prompt's transient state block.
// Empty pad renders empty so the loop can skip the block entirely.
func (s *Scratchpad) StateString() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("## SCRATCHPAD:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, s.data[k])
	}
	return strings.TrimRight(b.String(), "\n")
}
