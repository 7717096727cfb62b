package systemd

import (
	"context"
	"testing"
	"time"

	"resgov/internal/execx"
)

func TestSystemctlIsActive(t *testing.T) {
	run := execx.NewFake()
	run.Outputs["systemctl show -p ActiveState --value vllm.service"] = "active"
	run.Outputs["systemctl show -p ActiveState --value dead.service"] = "inactive"
	s := New(run)
	ctx := context.Background()

	active, err := s.IsActive(ctx, "vllm.service")
	if err != nil || !active {
		t.Fatalf("active=%v err=%v", active, err)
	}
	active, err = s.IsActive(ctx, "dead.service")
	if err != nil || active {
		t.Fatalf("inactive unit reported active")
	}
	// unknown units also answer through show, with an empty value
	active, err = s.IsActive(ctx, "ghost.service")
	if err != nil || active {
		t.Fatalf("unknown unit must report inactive, got active=%v err=%v", active, err)
	}
}

func TestSystemctlUnitExists(t *testing.T) {
	run := execx.NewFake()
	run.Outputs["systemctl show -p LoadState --value vllm.service"] = "loaded"
	run.Outputs["systemctl show -p LoadState --value ghost.service"] = "not-found"
	s := New(run)
	ctx := context.Background()

	exists, err := s.UnitExists(ctx, "vllm.service")
	if err != nil || !exists {
		t.Fatalf("exists=%v err=%v", exists, err)
	}
	exists, err = s.UnitExists(ctx, "ghost.service")
	if err != nil || exists {
		t.Fatalf("not-found unit must not exist")
	}
}

func TestSystemctlMutations(t *testing.T) {
	run := execx.NewFake()
	s := New(run)
	ctx := context.Background()

	if err := s.DaemonReload(ctx); err != nil {
		t.Fatalf("daemon-reload: %v", err)
	}
	if err := s.RestartUnit(ctx, "vllm.service"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := s.EnableUnit(ctx, "earlyoom.service"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	want := []string{
		"systemctl daemon-reload",
		"systemctl restart vllm.service",
		"systemctl enable earlyoom.service",
	}
	if len(run.Calls) != len(want) {
		t.Fatalf("calls: %v", run.Calls)
	}
	for i := range want {
		if run.Calls[i] != want[i] {
			t.Fatalf("call %d = %q, want %q", i, run.Calls[i], want[i])
		}
	}
}

func TestPropertyUint(t *testing.T) {
	cases := []struct {
		in string
		n  uint64
		ok bool
	}{
		{"4294967296", 4294967296, true},
		{"0", 0, true},
		{"[not set]", 0, false},
		{"18446744073709551615", 0, false}, // infinity sentinel
		{"", 0, false},
	}
	for _, c := range cases {
		n, ok := PropertyUint(c.in)
		if n != c.n || ok != c.ok {
			t.Fatalf("PropertyUint(%q) = (%d, %v), want (%d, %v)", c.in, n, ok, c.n, c.ok)
		}
	}
}

func TestWaitActive(t *testing.T) {
	f := NewFake()
	f.Active["vllm.service"] = true
	ok, err := WaitActive(context.Background(), f, "vllm.service", 3, 0)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	ok, err = WaitActive(context.Background(), f, "dead.service", 3, 0)
	if err != nil || ok {
		t.Fatalf("dead unit reported active")
	}
}

func TestWaitActiveHonorsContext(t *testing.T) {
	f := NewFake()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := WaitActive(ctx, f, "dead.service", 5, time.Second); err == nil {
		t.Fatalf("cancelled wait must return the context error")
	}
}
