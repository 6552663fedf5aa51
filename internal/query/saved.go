package query

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"mindgraph/internal/errors"
	"mindgraph/internal/logging"
)

// SavedQuery is a named query with default parameter values. Params
// fill `$name` placeholders in Text at execution time.
type SavedQuery struct {
	Text   string            `toml:"text"`
	Params map[string]string `toml:"params,omitempty"`
}

type savedFile struct {
	Queries map[string]SavedQuery `toml:"queries"`
}

// SavedStore persists saved queries to a TOML file.
type SavedStore struct {
	mu     sync.Mutex
	path   string
	logger *logging.Logger
}

func NewSavedStore(path string, logger *logging.Logger) *SavedStore {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &SavedStore{path: path, logger: logger}
}

func (s *SavedStore) load() (*savedFile, error) {
	f := &savedFile{Queries: map[string]SavedQuery{}}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, errors.Wrap(errors.InternalError, "reading saved queries", err)
	}
	if err := toml.Unmarshal(data, f); err != nil {
		// A corrupt file should not take saved queries down with it.
		s.logger.Warn("saved query file is corrupt, starting empty", map[string]interface{}{
			"path":  s.path,
			"error": err.Error(),
		})
		return &savedFile{Queries: map[string]SavedQuery{}}, nil
	}
	if f.Queries == nil {
		f.Queries = map[string]SavedQuery{}
	}
	return f, nil
}

func (s *SavedStore) persist(f *savedFile) error {
	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(f); err != nil {
		return errors.Wrap(errors.InternalError, "encoding saved queries", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(buf.String()), 0o644); err != nil {
		return errors.Wrap(errors.InternalError, "writing saved queries", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(errors.InternalError, "replacing saved queries", err)
	}
	return nil
}

// Save validates that text parses (with defaults substituted) before
// recording it under name.
func (s *SavedStore) Save(name, text string, params map[string]string) error {
	if name == "" {
		return errors.New(errors.QuerySyntax, "saved query name must not be empty")
	}
	resolved, err := SubstituteParams(text, params)
	if err != nil {
		return err
	}
	if _, err := Parse(resolved); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.load()
	if err != nil {
		return err
	}
	f.Queries[name] = SavedQuery{Text: text, Params: params}
	return s.persist(f)
}

// Get returns the saved query recorded under name.
func (s *SavedStore) Get(name string) (SavedQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.load()
	if err != nil {
		return SavedQuery{}, err
	}
	q, ok := f.Queries[name]
	if !ok {
		return SavedQuery{}, errors.Newf(errors.QueryNotFound, "no saved query named %q", name)
	}
	return q, nil
}

// List returns saved query names in lexical order.
func (s *SavedStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(f.Queries))
	for name := range f.Queries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a saved query. Deleting an unknown name is an error
// so callers can distinguish it from success.
func (s *SavedStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := f.Queries[name]; !ok {
		return errors.Newf(errors.QueryNotFound, "no saved query named %q", name)
	}
	delete(f.Queries, name)
	return s.persist(f)
}

// Resolve returns the executable text of a saved query with its
// default parameters applied, overridden by the given values.
func (s *SavedStore) Resolve(name string, overrides map[string]string) (string, error) {
	q, err := s.Get(name)
	if err != nil {
		return "", err
	}
	params := make(map[string]string, len(q.Params)+len(overrides))
	for k, v := range q.Params {
		params[k] = v
	}
	for k, v := range overrides {
		params[k] = v
	}
	return SubstituteParams(q.Text, params)
}

// SubstituteParams replaces `$name` placeholders with parameter
// values. Substitution is token-aware: placeholders inside string
// literals are left alone. Numeric values splice in bare, everything
// else as a quoted string.
func SubstituteParams(text string, params map[string]string) (string, error) {
	tokens, err := lex(text)
	if err != nil {
		return "", err
	}
	runes := []rune(text)
	var b strings.Builder
	last := 0
	for _, tok := range tokens {
		if tok.kind != tokenParam {
			continue
		}
		value, ok := params[tok.text]
		if !ok {
			return "", errors.Newf(errors.QuerySyntax, "missing value for parameter $%s", tok.text)
		}
		start := tok.pos - 1
		b.WriteString(string(runes[last:start]))
		if _, numErr := strconv.ParseFloat(value, 64); numErr == nil {
			b.WriteString(value)
		} else {
			b.WriteString(fmt.Sprintf("%q", value))
		}
		last = start + 1 + len([]rune(tok.text))
	}
	b.WriteString(string(runes[last:]))
	return b.String(), nil
}
