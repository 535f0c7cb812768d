package app

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestKeyNamespace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tests := []struct {
		cmd      redis.Cmder
		expected string
	}{
		{redis.NewStringCmd(ctx, "get", "cache:quote:5"), "cache"},
		{redis.NewBoolCmd(ctx, "setnx", "lock:wallet:0xabc", "1"), "lock"},
		{redis.NewStatusCmd(ctx, "ping"), "redis"},
		{redis.NewStringCmd(ctx, "get", "plain"), "redis"},
	}

	for _, tt := range tests {
		if got := keyNamespace(tt.cmd); got != tt.expected {
			t.Errorf("%v: expected %s, got %s", tt.cmd.Args(), tt.expected, got)
		}
	}
}
