package llm

import (
	"os"
	"time"

	"github.com/recassity/mgba-bridge/internal/buttons"
)

const readinessPollInterval = 50 * time.Millisecond

// WaitForScreenshot implements spec.md §4.3's readiness wait: polls
// path until it exists with non-zero size, stable across one
// additional tick, bounded by max(baseMS*classFactor, maxWaitMS). The
// Protocol Engine calls this before handing paths to a Provider so a
// missing file never reaches the vendor SDK.
func WaitForScreenshot(path string, class buttons.Class, baseMS, maxWaitMS int, movementMult, interactionMult, menuMult float64) error {
	factor := buttons.ClassFactor(class, movementMult, interactionMult, menuMult)
	budget := time.Duration(float64(baseMS)*factor) * time.Millisecond
	if minBudget := time.Duration(maxWaitMS) * time.Millisecond; budget < minBudget {
		budget = minBudget
	}

	deadline := time.Now().Add(budget)
	var lastSize int64 = -1
	for {
		info, err := os.Stat(path)
		if err == nil && info.Size() > 0 {
			if info.Size() == lastSize {
				return nil
			}
			lastSize = info.Size()
		}
		if time.Now().After(deadline) {
			return &AdapterError{Kind: ErrFileMissing, Message: "screenshot file not ready: " + path}
		}
		time.Sleep(readinessPollInterval)
	}
}
