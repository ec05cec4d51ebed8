// Package prompts loads the LLM prompt sets, renders their templates and
// sanitises user-supplied text before it is placed into a prompt.
package prompts

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"go.uber.org/zap"
)

// Prompt set names.
const (
	TypeRelevancyCheck = "relevancy_check"
	TypeSummarization  = "summarization"
)

//go:embed defaults/*.json
var defaultsFS embed.FS

// Set is one prompt file: a system prompt and a user template with
// {placeholder} fields.
type Set struct {
	System       string `json:"system"`
	UserTemplate string `json:"user_template"`
}

// Manager caches prompt sets. Embedded defaults are always present; files in
// the override directory replace them by file stem.
type Manager struct {
	dir    string
	logger *zap.Logger

	mu   sync.RWMutex
	sets map[string]Set
}

// NewManager loads the embedded defaults and any overrides in dir.
// An empty dir uses the defaults only.
func NewManager(dir string, logger *zap.Logger) (*Manager, error) {
	m := &Manager{dir: dir, logger: logger}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Dir returns the override directory.
func (m *Manager) Dir() string { return m.dir }

// Reload re-reads every prompt set and swaps the cache. On error the
// previous cache is kept.
func (m *Manager) Reload() error {
	sets := make(map[string]Set)

	entries, err := defaultsFS.ReadDir("defaults")
	if err != nil {
		return fmt.Errorf("reading embedded prompts: %w", err)
	}
	for _, e := range entries {
		data, err := defaultsFS.ReadFile("defaults/" + e.Name())
		if err != nil {
			return fmt.Errorf("reading embedded prompt %s: %w", e.Name(), err)
		}
		s, err := parseSet(e.Name(), data)
		if err != nil {
			return err
		}
		sets[stem(e.Name())] = s
	}

	if m.dir != "" {
		files, err := filepath.Glob(filepath.Join(m.dir, "*.json"))
		if err != nil {
			return fmt.Errorf("listing prompts in %s: %w", m.dir, err)
		}
		if len(files) == 0 {
			if _, err := os.Stat(m.dir); err != nil {
				return fmt.Errorf("prompts directory not found: %w", err)
			}
		}
		for _, f := range files {
			data, err := os.ReadFile(f)
			if err != nil {
				return fmt.Errorf("reading prompt file %s: %w", f, err)
			}
			s, err := parseSet(f, data)
			if err != nil {
				return err
			}
			sets[stem(f)] = s
			m.logger.Info("loaded prompt override", zap.String("type", stem(f)), zap.String("file", f))
		}
	}

	m.mu.Lock()
	m.sets = sets
	m.mu.Unlock()
	return nil
}

// Get returns the prompt set of the given type.
func (m *Manager) Get(promptType string) (Set, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sets[promptType]
	if !ok {
		return Set{}, fmt.Errorf("prompt type %q not found", promptType)
	}
	return s, nil
}

// Types lists the loaded prompt set names in sorted order.
func (m *Manager) Types() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sets))
	for k := range m.sets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// parseSet reads a prompt file. Files are JSON5, so operators can leave
// comments and trailing commas in overrides.
func parseSet(name string, data []byte) (Set, error) {
	var raw map[string]string
	if err := json5.Unmarshal(data, &raw); err != nil {
		return Set{}, fmt.Errorf("invalid JSON in %s: %w", name, err)
	}
	var missing []string
	for _, key := range []string{"system", "user_template"} {
		if strings.TrimSpace(raw[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Set{}, fmt.Errorf("missing required prompt keys in %s: %s", name, strings.Join(missing, ", "))
	}
	return Set{System: raw["system"], UserTemplate: raw["user_template"]}, nil
}

func stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Render substitutes {name} placeholders in tmpl. Unknown placeholders and
// other braces are left untouched.
func Render(tmpl string, vars map[string]string) string {
	if len(vars) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
