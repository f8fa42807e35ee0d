package utils

import (
	"context"
	"testing"
	"time"
)

func TestRedisConfig_Defaults(t *testing.T) {
	c := RedisConfig{Addr: "localhost:6379"}.withDefaults()
	if c.PoolSize != 4 || c.Timeout != 2*time.Second || c.PingTimeout <= 0 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	o := c.options()
	if o.ReadTimeout != c.Timeout || o.WriteTimeout != c.Timeout || o.Addr != c.Addr {
		t.Fatalf("options not carried over: %+v", o)
	}
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}
