package planning

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// randomStepSubset 从默认目录的 11 个步骤中取随机大小的随机排列子集。
func randomStepSubset(rng *rand.Rand, catalog *Catalog) []string {
	ids := make([]string, 0, 11)
	for _, s := range catalog.Steps() {
		ids = append(ids, s.ID)
	}
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids[:rng.Intn(len(ids)+1)]
}

func isPermutation(input, output []string) bool {
	if len(input) != len(output) {
		return false
	}
	counts := make(map[string]int, len(input))
	for _, s := range input {
		counts[s]++
	}
	for _, s := range output {
		counts[s]--
		if counts[s] < 0 {
			return false
		}
	}
	return true
}

func TestOrderingProperties(t *testing.T) {
	catalog := DefaultCatalog()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("排序结果是输入集合的排列", prop.ForAll(
		func(seed int64) bool {
			rng := rand.New(rand.NewSource(seed))
			steps := randomStepSubset(rng, catalog)

			ordered, degraded := orderSteps(steps, catalog)
			// 默认目录无环, 任何子集都不触发退化
			return !degraded && isPermutation(steps, ordered)
		},
		gen.Int64(),
	))

	properties.Property("集合内依赖先于依赖者", prop.ForAll(
		func(seed int64) bool {
			rng := rand.New(rand.NewSource(seed))
			steps := randomStepSubset(rng, catalog)

			ordered, degraded := orderSteps(steps, catalog)
			if degraded {
				return false
			}
			pos := make(map[string]int, len(ordered))
			for i, s := range ordered {
				pos[s] = i
			}
			for _, s := range ordered {
				for _, dep := range catalog.Dependencies(s) {
					if depPos, inSet := pos[dep]; inSet && depPos > pos[s] {
						return false
					}
				}
			}
			return true
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}

// 环依赖目录上的退化路径: 结果仍是排列, 且退化恰在整个环都入选时发生。
func TestOrderingProperties_Degraded(t *testing.T) {
	spec := CatalogSpec{
		Steps: []StepDescriptor{
			{ID: "a", DependsOn: []string{"b"}, EstimatedSeconds: 1},
			{ID: "b", DependsOn: []string{"c"}, EstimatedSeconds: 1},
			{ID: "c", DependsOn: []string{"a"}, EstimatedSeconds: 1},
			{ID: "d", EstimatedSeconds: 1},
			{ID: "e", DependsOn: []string{"d"}, EstimatedSeconds: 1},
		},
		BasePlans: map[string]BasePlan{
			DefaultIntent: {Steps: []string{"a", "b", "c"}, EstimatedSeconds: 3},
		},
		Fallbacks: map[string]FallbackStrategy{
			DefaultIntent: {Steps: []string{"d"}, Output: "partial"},
		},
	}
	catalog, err := NewCatalog(spec)
	if err != nil {
		t.Fatalf("build cyclic catalogue: %v", err)
	}
	all := []string{"a", "b", "c", "d", "e"}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("退化路径仍返回排列", prop.ForAll(
		func(seed int64) bool {
			rng := rand.New(rand.NewSource(seed))
			steps := append([]string(nil), all...)
			rng.Shuffle(len(steps), func(i, j int) { steps[i], steps[j] = steps[j], steps[i] })
			steps = steps[:rng.Intn(len(steps)+1)]

			ordered, degraded := orderSteps(steps, catalog)
			if !isPermutation(steps, ordered) {
				return false
			}

			inSet := make(map[string]bool, len(steps))
			for _, s := range steps {
				inSet[s] = true
			}
			wantDegraded := inSet["a"] && inSet["b"] && inSet["c"]
			return degraded == wantDegraded
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}

func TestPlannerProperties(t *testing.T) {
	catalog := DefaultCatalog()
	planner, err := NewPlanner(catalog, nil)
	if err != nil {
		t.Fatalf("build planner: %v", err)
	}
	intents := catalog.Intents()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("规划是输入的纯函数", prop.ForAll(
		func(intentIdx int, complexity float64, hasFile bool) bool {
			analysis := analysisFixture(intents[intentIdx], complexity)
			first := planner.CreateExecutionPlan(analysis, hasFile)
			second := planner.CreateExecutionPlan(analysis, hasFile)
			return reflect.DeepEqual(first, second)
		},
		gen.IntRange(0, len(catalog.Intents())-1),
		gen.Float64Range(0, 1),
		gen.Bool(),
	))

	properties.Property("计划步骤无重复且覆盖基础计划", prop.ForAll(
		func(intentIdx int, complexity float64, hasFile bool) bool {
			intent := intents[intentIdx]
			plan := planner.CreateExecutionPlan(analysisFixture(intent, complexity), hasFile)

			seen := make(map[string]bool, len(plan.Steps))
			for _, s := range plan.Steps {
				if seen[s] {
					return false
				}
				seen[s] = true
			}

			base, _ := catalog.BasePlan(intent)
			for _, s := range base.Steps {
				if !seen[s] {
					return false
				}
			}
			if complexity > qualityThreshold && (!seen[StepCritique] || !seen[StepDebate]) {
				return false
			}
			if hasFile {
				if len(plan.Steps) < 2 || plan.Steps[0] != StepData || plan.Steps[1] != StepCleaner {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, len(catalog.Intents())-1),
		gen.Float64Range(0, 1),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
