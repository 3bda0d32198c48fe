package risk

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/younsl/autoprotect/internal/models"
)

// TestMemoryMonotonicity verifies that lowering memory never turns a skip into eligibility.
// Property: Eligible(m2) && m1 > m2 => Eligible(m1)
func TestMemoryMonotonicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	cfg := testConfig()

	properties.Property("memory above the minimum is eligible, at or below is skipped(memory)", prop.ForAll(
		func(memory int32) bool {
			d := eligible()
			d.MemoryMB = memory
			result := Assess(d, cfg)

			if memory > cfg.Thresholds.MinMemoryMB {
				return result.Eligible()
			}
			return result.Reason == models.ReasonMemory
		},
		gen.Int32Range(1, 10240),
	))

	properties.Property("decreasing memory never flips skipped to eligible", prop.ForAll(
		func(high, delta int32) bool {
			low := high - delta
			if low < 1 {
				return true
			}
			d := eligible()
			d.MemoryMB = high
			highResult := Assess(d, cfg)
			d.MemoryMB = low
			lowResult := Assess(d, cfg)

			return !lowResult.Eligible() || highResult.Eligible()
		},
		gen.Int32Range(1, 10240),
		gen.Int32Range(0, 10240),
	))

	properties.TestingRun(t)
}

// TestFirstFailureOrdering verifies the reported reason is always the earliest failing check.
func TestFirstFailureOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	cfg := testConfig()
	order := []models.SkipReason{
		models.ReasonPackageType,
		models.ReasonArchitecture,
		models.ReasonRuntime,
		models.ReasonMemory,
		models.ReasonTimeout,
	}

	properties.Property("reason is the first broken check", prop.ForAll(
		func(broken []bool) bool {
			d := eligible()
			breakers := []func(){
				func() { d.PackageType = models.PackageTypeImage },
				func() { d.Architecture = "arm64" },
				func() { d.Runtime = "ruby3.3" },
				func() { d.MemoryMB = 128 },
				func() { d.TimeoutSeconds = 900 },
			}

			want := models.SkipReason("")
			for i, b := range broken {
				if !b {
					continue
				}
				breakers[i]()
				if want == "" {
					want = order[i]
				}
			}

			result := Assess(d, cfg)
			if want == "" {
				return result.Eligible()
			}
			return result.Reason == want
		},
		gen.SliceOfN(5, gen.Bool()),
	))

	properties.TestingRun(t)
}
