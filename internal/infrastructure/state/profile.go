package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const profileFile = "user_profile.json"

// Ambiguous profile keys land in a canonical category regardless of
// what the model chose.
var keyRemap = map[string]struct{ category, key string }{
	"wife":     {"relationships", "wife"},
	"husband":  {"relationships", "husband"},
	"son":      {"relationships", "son"},
	"daughter": {"relationships", "daughter"},
	"car":      {"assets", "car"},
	"vehicle":  {"assets", "car"},
	"science":  {"interests", "science"},
	"interest": {"interests", "general"},
}

// ProfileStore persists what the agent knows about its user as a small
// categorized JSON document rendered into the system prompt.
type ProfileStore struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

func NewProfileStore(dir string, logger *zap.Logger) (*ProfileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	p := &ProfileStore{
		path:   filepath.Join(dir, profileFile),
		logger: logger.With(zap.String("component", "profile")),
	}
	if _, err := os.Stat(p.path); os.IsNotExist(err) {
		if err := p.write(defaultProfile()); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func defaultProfile() map[string]interface{} {
	return map[string]interface{}{
		"root":          map[string]interface{}{"name": "User"},
		"relationships": map[string]interface{}{},
		"interests":     map[string]interface{}{},
		"assets":        map[string]interface{}{},
	}
}

// Load returns the profile document, falling back to the default
// structure if the file is missing or corrupt.
func (p *ProfileStore) Load() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.read()
}

func (p *ProfileStore) read() map[string]interface{} {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return defaultProfile()
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		p.logger.Warn("Corrupt profile file, using defaults", zap.Error(err))
		return defaultProfile()
	}
	return doc
}

// write persists atomically via a temp file rename.
func (p *ProfileStore) write(doc map[string]interface{}) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmpPath := p.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, p.path)
}

// Update stores a fact, remapping well-known keys to their canonical
// category. Returns the confirmation line fed back to the model.
func (p *ProfileStore) Update(category, key, value string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cat := strings.ToLower(strings.TrimSpace(category))
	k := strings.ToLower(strings.TrimSpace(key))
	v := strings.TrimSpace(value)

	targetKey := k
	if remap, ok := keyRemap[k]; ok {
		cat = remap.category
		targetKey = remap.key
	}

	doc := p.read()
	sub, ok := doc[cat].(map[string]interface{})
	if !ok {
		sub = map[string]interface{}{}
		doc[cat] = sub
	}
	sub[targetKey] = v

	if err := p.write(doc); err != nil {
		return "", fmt.Errorf("save profile: %w", err)
	}
	return fmt.Sprintf("Synchronized: %s.%s = %s", cat, targetKey, v), nil
}

// Delete removes a fact. The returned line reports the outcome either way.
func (p *ProfileStore) Delete(category, key string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cat := strings.ToLower(strings.TrimSpace(category))
	k := strings.ToLower(strings.TrimSpace(key))

	doc := p.read()
	sub, ok := doc[cat].(map[string]interface{})
	if !ok {
		return fmt.Sprintf("Profile key not found: %s.%s", cat, k), nil
	}
	if _, exists := sub[k]; !exists {
		return fmt.Sprintf("Profile key not found: %s.%s", cat, k), nil
	}

	delete(sub, k)
	if len(sub) == 0 {
		delete(doc, cat)
	}
	if err := p.write(doc); err != nil {
		return "", fmt.Errorf("save profile: %w", err)
	}
	return fmt.Sprintf("Removed from Profile: %s.%s", cat, k), nil
}

// preferred category order for rendering; extras follow alphabetically
var categoryOrder = []string{"root", "relationships", "interests", "assets"}

// ContextString renders the profile for the {{PROFILE}} prompt slot.
func (p *ProfileStore) ContextString() string {
	doc := p.Load()

	var cats []string
	seen := make(map[string]bool)
	for _, c := range categoryOrder {
		if _, ok := doc[c]; ok {
			cats = append(cats, c)
			seen[c] = true
		}
	}
	var extras []string
	for c := range doc {
		if !seen[c] {
			extras = append(extras, c)
		}
	}
	sort.Strings(extras)
	cats = append(cats, extras...)

	var lines []string
	for _, cat := range cats {
		val := doc[cat]
		label := capitalize(strings.ReplaceAll(cat, "_", " "))
		switch v := val.(type) {
		case map[string]interface{}:
			if len(v) == 0 {
				continue
			}
			lines = append(lines, fmt.Sprintf("## %s:", label))
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				lines = append(lines, fmt.Sprintf("- %s: %v", k, v[k]))
			}
		case []interface{}:
			if len(v) == 0 {
				continue
			}
			parts := make([]string, len(v))
			for i, item := range v {
				parts[i] = fmt.Sprintf("%v", item)
			}
			lines = append(lines, fmt.Sprintf("## %s: %s", label, strings.Join(parts, ", ")))
		case nil:
			continue
		default:
			s := fmt.Sprintf("%v", v)
			if s == "" {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s: %s", label, s))
		}
	}
	return strings.Join(lines, "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
