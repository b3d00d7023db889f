package planning

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/queryflow/types"
)

// StepDescriptor describes one catalogue step: its identity, the steps it
// declares as dependencies, and a default duration estimate.
type StepDescriptor struct {
	ID               string   `yaml:"id" json:"id"`
	DependsOn        []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	EstimatedSeconds float64  `yaml:"estimated_seconds" json:"estimated_seconds"`
}

// BasePlan is the per-intent starting point for the planner.
type BasePlan struct {
	Steps            []string `yaml:"steps" json:"steps"`
	EstimatedSeconds float64  `yaml:"estimated_seconds" json:"estimated_seconds"`
}

// FallbackStrategy is the per-intent simplified step subset used when the
// primary plan underperforms, plus the label describing the degraded output.
type FallbackStrategy struct {
	Steps  []string `yaml:"steps" json:"steps"`
	Output string   `yaml:"output" json:"output"`
}

// CatalogSpec is the YAML shape of a catalogue file. Sections left empty
// inherit the built-in defaults wholesale.
type CatalogSpec struct {
	Steps     []StepDescriptor            `yaml:"steps"`
	BasePlans map[string]BasePlan         `yaml:"base_plans"`
	Fallbacks map[string]FallbackStrategy `yaml:"fallbacks"`
	Patterns  map[string][]string         `yaml:"patterns"`
	StatTerms []string                    `yaml:"stat_terms"`
}

// Catalog 是注入给分类器与规划器的不可变配置:
// 步骤描述、意图基础计划、降级策略、意图触发模式与统计词表。
// 构造完成后只读, 所有访问器返回副本。
type Catalog struct {
	steps     []StepDescriptor
	stepIndex map[string]int
	basePlans map[string]BasePlan
	fallbacks map[string]FallbackStrategy
	intents   []string
	patterns  map[string][]*regexp.Regexp
	statTerms []string
}

// DefaultCatalog returns the built-in catalogue. The shipped tables are
// statically known-good, so construction cannot fail.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(CatalogSpec{})
	if err != nil {
		panic(fmt.Sprintf("planning: built-in catalogue invalid: %v", err))
	}
	return c
}

// LoadCatalog builds a catalogue from a YAML file layered over the defaults.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewError(types.ErrCatalogInvalid,
			fmt.Sprintf("read catalogue file %s", path)).WithCause(err)
	}
	var spec CatalogSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, types.NewError(types.ErrCatalogInvalid,
			fmt.Sprintf("parse catalogue file %s", path)).WithCause(err)
	}
	return NewCatalog(spec)
}

// NewCatalog builds and validates a catalogue. Empty spec sections fall back
// to the built-in defaults.
func NewCatalog(spec CatalogSpec) (*Catalog, error) {
	steps := spec.Steps
	if len(steps) == 0 {
		steps = defaultSteps()
	}
	basePlans := spec.BasePlans
	if len(basePlans) == 0 {
		basePlans = defaultBasePlans()
	}
	fallbacks := spec.Fallbacks
	if len(fallbacks) == 0 {
		fallbacks = defaultFallbacks()
	}
	rawPatterns := spec.Patterns
	if len(rawPatterns) == 0 {
		rawPatterns = defaultPatterns()
	}
	statTerms := spec.StatTerms
	if len(statTerms) == 0 {
		statTerms = defaultStatTerms()
	}

	c := &Catalog{
		steps:     make([]StepDescriptor, 0, len(steps)),
		stepIndex: make(map[string]int, len(steps)),
		basePlans: make(map[string]BasePlan, len(basePlans)),
		fallbacks: make(map[string]FallbackStrategy, len(fallbacks)),
		intents:   intentOrder(),
		patterns:  make(map[string][]*regexp.Regexp, len(rawPatterns)),
		statTerms: append([]string(nil), statTerms...),
	}

	for _, s := range steps {
		if s.ID == "" {
			return nil, types.NewError(types.ErrCatalogInvalid, "step with empty id")
		}
		if _, dup := c.stepIndex[s.ID]; dup {
			return nil, types.NewError(types.ErrCatalogInvalid,
				fmt.Sprintf("duplicate step id %q", s.ID))
		}
		copied := StepDescriptor{
			ID:               s.ID,
			DependsOn:        append([]string(nil), s.DependsOn...),
			EstimatedSeconds: s.EstimatedSeconds,
		}
		c.stepIndex[s.ID] = len(c.steps)
		c.steps = append(c.steps, copied)
	}
	for _, s := range c.steps {
		for _, dep := range s.DependsOn {
			if _, ok := c.stepIndex[dep]; !ok {
				return nil, types.NewError(types.ErrCatalogInvalid,
					fmt.Sprintf("step %q depends on unknown step %q", s.ID, dep))
			}
		}
	}

	for intent, plan := range basePlans {
		if err := c.checkStepList(fmt.Sprintf("base plan %q", intent), plan.Steps); err != nil {
			return nil, err
		}
		c.basePlans[intent] = BasePlan{
			Steps:            append([]string(nil), plan.Steps...),
			EstimatedSeconds: plan.EstimatedSeconds,
		}
	}
	if _, ok := c.basePlans[DefaultIntent]; !ok {
		return nil, types.NewError(types.ErrCatalogInvalid,
			fmt.Sprintf("missing base plan for default intent %q", DefaultIntent))
	}

	for intent, fb := range fallbacks {
		if err := c.checkStepList(fmt.Sprintf("fallback %q", intent), fb.Steps); err != nil {
			return nil, err
		}
		c.fallbacks[intent] = FallbackStrategy{
			Steps:  append([]string(nil), fb.Steps...),
			Output: fb.Output,
		}
	}
	if _, ok := c.fallbacks[DefaultIntent]; !ok {
		return nil, types.NewError(types.ErrCatalogInvalid,
			fmt.Sprintf("missing fallback for default intent %q", DefaultIntent))
	}

	for intent, exprs := range rawPatterns {
		compiled := make([]*regexp.Regexp, 0, len(exprs))
		for _, expr := range exprs {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, types.NewError(types.ErrCatalogInvalid,
					fmt.Sprintf("intent %q pattern %q", intent, expr)).WithCause(err)
			}
			compiled = append(compiled, re)
		}
		c.patterns[intent] = compiled
	}

	return c, nil
}

func (c *Catalog) checkStepList(where string, ids []string) error {
	for _, id := range ids {
		if _, ok := c.stepIndex[id]; !ok {
			return types.NewError(types.ErrCatalogInvalid,
				fmt.Sprintf("%s references unknown step %q", where, id))
		}
	}
	return nil
}

// Step returns the descriptor for a step id.
func (c *Catalog) Step(id string) (StepDescriptor, bool) {
	idx, ok := c.stepIndex[id]
	if !ok {
		return StepDescriptor{}, false
	}
	s := c.steps[idx]
	return StepDescriptor{
		ID:               s.ID,
		DependsOn:        append([]string(nil), s.DependsOn...),
		EstimatedSeconds: s.EstimatedSeconds,
	}, true
}

// Steps returns all step descriptors in catalogue order.
func (c *Catalog) Steps() []StepDescriptor {
	out := make([]StepDescriptor, 0, len(c.steps))
	for _, s := range c.steps {
		out = append(out, StepDescriptor{
			ID:               s.ID,
			DependsOn:        append([]string(nil), s.DependsOn...),
			EstimatedSeconds: s.EstimatedSeconds,
		})
	}
	return out
}

// HasStep reports whether the catalogue knows the step id.
func (c *Catalog) HasStep(id string) bool {
	_, ok := c.stepIndex[id]
	return ok
}

// Dependencies returns the declared dependencies of a step.
// Unknown steps have none.
func (c *Catalog) Dependencies(id string) []string {
	idx, ok := c.stepIndex[id]
	if !ok {
		return nil
	}
	return append([]string(nil), c.steps[idx].DependsOn...)
}

// EstimatedSeconds returns the default duration estimate for a step,
// zero for unknown steps.
func (c *Catalog) EstimatedSeconds(id string) float64 {
	idx, ok := c.stepIndex[id]
	if !ok {
		return 0
	}
	return c.steps[idx].EstimatedSeconds
}

// BasePlan returns the per-intent base plan.
func (c *Catalog) BasePlan(intent string) (BasePlan, bool) {
	plan, ok := c.basePlans[intent]
	if !ok {
		return BasePlan{}, false
	}
	return BasePlan{
		Steps:            append([]string(nil), plan.Steps...),
		EstimatedSeconds: plan.EstimatedSeconds,
	}, true
}

// Fallback returns the per-intent fallback strategy.
func (c *Catalog) Fallback(intent string) (FallbackStrategy, bool) {
	fb, ok := c.fallbacks[intent]
	if !ok {
		return FallbackStrategy{}, false
	}
	return FallbackStrategy{
		Steps:  append([]string(nil), fb.Steps...),
		Output: fb.Output,
	}, true
}

// Intents returns all intents in stable catalogue order.
func (c *Catalog) Intents() []string {
	return append([]string(nil), c.intents...)
}

// HasIntent reports whether the intent is one of the catalogue categories.
func (c *Catalog) HasIntent(intent string) bool {
	for _, i := range c.intents {
		if i == intent {
			return true
		}
	}
	return false
}

// DetectIntents runs every intent's pattern family against the query and
// returns matching intents in stable catalogue order.
func (c *Catalog) DetectIntents(query string) []string {
	var detected []string
	for _, intent := range c.intents {
		for _, re := range c.patterns[intent] {
			if re.MatchString(query) {
				detected = append(detected, intent)
				break
			}
		}
	}
	return detected
}

// StatTermCount 统计查询中出现的统计学词汇个数（按词去重）.
func (c *Catalog) StatTermCount(query string) int {
	return len(c.MatchStatTerms(query))
}

// MatchStatTerms 返回查询中命中的统计学词汇, 按词表顺序去重.
func (c *Catalog) MatchStatTerms(query string) []string {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		words[w] = true
	}

	var matched []string
	for _, term := range c.statTerms {
		if words[term] {
			matched = append(matched, term)
		}
	}
	return matched
}

// StatTerms 返回统计学词表的副本.
func (c *Catalog) StatTerms() []string {
	out := make([]string, len(c.statTerms))
	copy(out, c.statTerms)
	return out
}
