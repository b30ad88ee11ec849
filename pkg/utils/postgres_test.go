package utils

import (
	"testing"
	"time"
)

func TestPostgresPoolConfigDefaults(t *testing.T) {
	c := PostgresPoolConfig{}.withDefaults()
	if c.MaxOpenConns != 25 || c.MaxIdleConns != 25 {
		t.Fatalf("unexpected conn defaults: %+v", c)
	}
	if c.ConnMaxLifetime != 30*time.Minute || c.ConnMaxIdleTime != 5*time.Minute {
		t.Fatalf("unexpected lifetime defaults: %+v", c)
	}
	if c.PingTimeout != 5*time.Second {
		t.Fatalf("unexpected ping timeout: %+v", c)
	}

	explicit := PostgresPoolConfig{MaxOpenConns: 5}.withDefaults()
	if explicit.MaxOpenConns != 5 {
		t.Fatalf("explicit value must win, got %d", explicit.MaxOpenConns)
	}
}
