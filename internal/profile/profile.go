// internal/profile/profile.go
package profile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/locus/internal/classifier"
	"github.com/xkilldash9x/locus/internal/store"
)

var (
	// ErrNotFound is returned when no profile has the requested name.
	ErrNotFound = errors.New("profile not found")
	// ErrInvalidName is returned for empty names or names containing "/".
	ErrInvalidName = errors.New("invalid profile name")
)

const keyPrefix = store.NamespaceProfiles + "/"

// Profile is a named set of form values keyed by semantic type.
type Profile struct {
	Name      string                             `json:"name" yaml:"name"`
	Values    map[classifier.SemanticType]string `json:"values" yaml:"values"`
	UpdatedAt time.Time                          `json:"updatedAt,omitempty" yaml:"-"`
}

// Store keeps profile documents in the mcp_profiles namespace, one key per profile.
type Store struct {
	kv     store.KV
	logger *zap.Logger
	now    func() time.Time
}

func NewStore(kv store.KV, logger *zap.Logger) *Store {
	if kv == nil {
		kv = store.NewMemory()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kv: kv, logger: logger.Named("profile"), now: time.Now}
}

func validName(name string) error {
	if strings.TrimSpace(name) == "" || strings.Contains(name, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Load reads one profile.
func (s *Store) Load(ctx context.Context, name string) (Profile, error) {
	if err := validName(name); err != nil {
		return Profile{}, err
	}
	var p Profile
	ok, err := store.GetJSON(ctx, s.kv, keyPrefix+name, &p)
	if err != nil {
		return Profile{}, err
	}
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return p, nil
}

// Save creates or replaces a profile. Empty values are dropped.
func (s *Store) Save(ctx context.Context, p Profile) error {
	if err := validName(p.Name); err != nil {
		return err
	}
	clean := make(map[classifier.SemanticType]string, len(p.Values))
	for k, v := range p.Values {
		if v = strings.TrimSpace(v); v != "" {
			clean[classifier.SemanticType(strings.TrimSpace(string(k)))] = v
		}
	}
	p.Values = clean
	p.UpdatedAt = s.now().UTC()
	if err := store.PutJSON(ctx, s.kv, keyPrefix+p.Name, p); err != nil {
		return fmt.Errorf("failed to save profile %s: %w", p.Name, err)
	}
	s.logger.Debug("Profile saved.", zap.String("name", p.Name), zap.Int("values", len(p.Values)))
	return nil
}

// List returns the profile names, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, keyPrefix))
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a profile.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	return s.kv.Delete(ctx, keyPrefix+name)
}

type seedFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// Seed loads profiles from a YAML document of the form
//
//	profiles:
//	  - name: default
//	    values:
//	      email: ann@example.com
//
// Existing profiles of the same name are replaced. It returns the number of profiles saved.
func (s *Store) Seed(ctx context.Context, r io.Reader) (int, error) {
	var f seedFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to decode profile seed: %w", err)
	}
	for i, p := range f.Profiles {
		if err := s.Save(ctx, p); err != nil {
			return i, err
		}
	}
	s.logger.Info("Profiles seeded.", zap.Int("count", len(f.Profiles)))
	return len(f.Profiles), nil
}

// Active resolves field values from one selected profile. The zero selection yields no values.
type Active struct {
	store *Store

	mu   sync.RWMutex
	name string
}

func NewActive(s *Store, name string) *Active { return &Active{store: s, name: name} }

// Use selects the profile values are read from.
func (a *Active) Use(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.name = name
}

// Name returns the selected profile name.
func (a *Active) Name() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.name
}

// ValueFor returns the value of the selected profile for t. Sensitive types are never served.
func (a *Active) ValueFor(ctx context.Context, t classifier.SemanticType) (string, bool) {
	name := a.Name()
	if name == "" || classifier.IsSensitiveType(t) {
		return "", false
	}
	p, err := a.store.Load(ctx, name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			a.store.logger.Warn("Failed to load profile.", zap.String("name", name), zap.Error(err))
		}
		return "", false
	}
	if v, ok := p.Values[t]; ok {
		return v, true
	}
	// Composite values the profile may not carry explicitly.
	switch t {
	case classifier.FullName:
		first, last := p.Values[classifier.FirstName], p.Values[classifier.LastName]
		if full := strings.TrimSpace(first + " " + last); full != "" {
			return full, true
		}
	case classifier.FirstName, classifier.LastName:
		if full := p.Values[classifier.FullName]; full != "" {
			parts := strings.Fields(full)
			if t == classifier.FirstName {
				return parts[0], true
			}
			if len(parts) > 1 {
				return strings.Join(parts[1:], " "), true
			}
		}
	}
	return "", false
}
