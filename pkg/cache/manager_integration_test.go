//go:build integration

package cache

import (
	"testing"

	"github.com/Sternrassler/crm-client/internal/testutil"
)

func TestManager_Integration(t *testing.T) {
	runManagerScenarios(t, testutil.StartRedis(t))
}
