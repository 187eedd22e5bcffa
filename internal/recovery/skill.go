// internal/recovery/skill.go
package recovery

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/xkilldash9x/locus/internal/browser"
)

// SkillMemory remembers which element resolved an intent and target, and tries it first next time.
type SkillMemory struct {
	env   Env
	cache *lru.Cache[string, browser.Target]
}

func NewSkillMemory(env Env) (*SkillMemory, error) {
	cfg := env.Config.withDefaults()
	cache, err := lru.New[string, browser.Target](cfg.SkillMemorySize)
	if err != nil {
		return nil, err
	}
	return &SkillMemory{env: env, cache: cache}, nil
}

func (s *SkillMemory) Name() string  { return "skill_memory" }
func (s *SkillMemory) Priority() int { return 800 }

func skillKey(rc Context) string {
	return strings.ToLower(rc.Intent) + "|" + strings.Join(Tokenize(rc.Target), " ") + "|" + Fold(rc.Hint(HintLabel))
}

func (s *SkillMemory) Attempt(ctx context.Context, rc Context) (Result, error) {
	key := skillKey(rc)
	t, ok := s.cache.Get(key)
	if !ok {
		return Result{}, nil
	}
	doc, err := s.env.Page.Document(ctx)
	if err != nil {
		return Result{}, err
	}
	sub, n, err := browser.Resolve(doc, t)
	if err != nil || !sub.IsVisible(n) {
		// The remembered element is gone; forget it rather than retrying a dead hint.
		s.cache.Remove(key)
		return Result{}, nil
	}
	el, ok := describe(sub, sub.TreeRoot(n), n, t.Scope)
	if !ok {
		return Result{}, nil
	}
	el.Target = t
	return found(el, map[string]interface{}{"key": key}), nil
}

// Learn records the element that resolved rc.
func (s *SkillMemory) Learn(rc Context, res Result) {
	if res.Element == nil {
		return
	}
	s.cache.Add(skillKey(rc), res.Element.Target)
}

// Len reports how many skills are remembered.
func (s *SkillMemory) Len() int { return s.cache.Len() }
