//go:build integration

package ratelimit

import (
	"testing"

	"github.com/Sternrassler/crm-client/internal/testutil"
)

func TestTracker_Integration(t *testing.T) {
	runTrackerScenarios(t, testutil.StartRedis(t))
}
