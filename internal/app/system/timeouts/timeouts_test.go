package timeouts

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestConfigure_IgnoresZero(t *testing.T) {
	defer Reset()

	Configure(Config{Short: 7 * time.Second})

	if Short() != 7*time.Second {
		t.Errorf("Short() = %v, want 7s", Short())
	}
	if Ping() != DefaultPing {
		t.Errorf("Ping() = %v, want default %v", Ping(), DefaultPing)
	}
	if Long() != DefaultLong {
		t.Errorf("Long() = %v, want default %v", Long(), DefaultLong)
	}
}

func TestConfigureFromEnv(t *testing.T) {
	defer Reset()
	t.Setenv("TIMEOUT_PING", "500ms")
	t.Setenv("TIMEOUT_SHORT", "bogus")
	t.Setenv("TIMEOUT_LONG", "-1s")

	if n := ConfigureFromEnv(); n != 1 {
		t.Errorf("ConfigureFromEnv() = %d, want 1", n)
	}
	cur := Current()
	if cur.Ping != 500*time.Millisecond {
		t.Errorf("Ping = %v, want 500ms", cur.Ping)
	}
	if cur.Short != DefaultShort || cur.Long != DefaultLong {
		t.Errorf("unexpected config %+v", cur)
	}
}

func TestWithTimeout_Cancels(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), time.Millisecond, zap.NewNop(), "test")
	<-ctx.Done()
	cancel()
	if ctx.Err() != context.DeadlineExceeded {
		t.Errorf("ctx.Err() = %v, want DeadlineExceeded", ctx.Err())
	}
}
