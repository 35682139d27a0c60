package pidctl

import "testing"

func TestDefaultErrorFuncOverLimitIsPositive(t *testing.T) {
	cfg := DefaultConfig(1000)
	e := DefaultErrorFunc(Inputs{UsedMemory: 2000}, cfg)
	if e <= 0 {
		t.Fatalf("expected positive error when used memory exceeds target, got %v", e)
	}
}

func TestDefaultErrorFuncAtLimitIsZero(t *testing.T) {
	cfg := DefaultConfig(1000)
	e := DefaultErrorFunc(Inputs{UsedMemory: 1000}, cfg)
	if e != 0 {
		t.Fatalf("expected zero error at exactly the limit, got %v", e)
	}
}

func TestTickReducesFactorWhenOverLimit(t *testing.T) {
	c := New(DefaultConfig(1000))
	next := c.Tick(Inputs{UsedMemory: 2000, CurrentFactor: 0.5})
	if next >= 0.5 {
		t.Fatalf("expected factor to shrink when over memory limit, got %v", next)
	}
}

func TestTickGrowsFactorWhenUnderLimit(t *testing.T) {
	c := New(DefaultConfig(1000))
	next := c.Tick(Inputs{UsedMemory: 0, CurrentFactor: 0.2})
	if next <= 0.2 {
		t.Fatalf("expected factor to grow when well under memory limit, got %v", next)
	}
}

func TestTickClampsToUnitInterval(t *testing.T) {
	c := New(DefaultConfig(1))
	for i := 0; i < 50; i++ {
		next := c.Tick(Inputs{UsedMemory: 1 << 30, CurrentFactor: 1})
		if next < 0 || next > 1 {
			t.Fatalf("expected factor clamped to [0,1], got %v", next)
		}
	}
}

func TestHistoryWindowIsBounded(t *testing.T) {
	cfg := DefaultConfig(1000)
	cfg.HistoryLen = 3
	c := New(cfg)
	for i := 0; i < 10; i++ {
		c.Tick(Inputs{UsedMemory: 1500, CurrentFactor: 0.5})
	}
	if len(c.history) != 3 {
		t.Fatalf("expected history capped at 3, got %d", len(c.history))
	}
}

func TestTargetFactor(t *testing.T) {
	if got := TargetFactor(2, 3); got != 1.0/6.0 {
		t.Fatalf("expected 1/6, got %v", got)
	}
	if got := TargetFactor(0, 0); got != 1.0 {
		t.Fatalf("expected denom floor of 1 giving factor 1.0, got %v", got)
	}
}
