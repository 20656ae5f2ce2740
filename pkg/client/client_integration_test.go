//go:build integration

package client

import (
	"testing"

	"github.com/Sternrassler/crm-client/internal/testutil"
)

func TestIntegration_RedisBackedClient(t *testing.T) {
	runRedisScenarios(t, testutil.StartRedis(t))
}
