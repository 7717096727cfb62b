package systemd

import (
	"context"
	"fmt"
)

// Fake is an in-memory Client for tests. Units listed in Active report
// active; Restarts counts restarts per unit; FailAfterRestart marks units
// that go (and stay) inactive once restarted.
type Fake struct {
	Active           map[string]bool
	Loaded           map[string]bool
	Properties       map[string]string // "unit/Property" -> value
	Restarts         map[string]int
	Reloads          int
	Enabled          []string
	FailAfterRestart map[string]bool
	// RestartErr, when set for a unit, is returned from RestartUnit.
	RestartErr map[string]error
}

func NewFake() *Fake {
	return &Fake{
		Active:           map[string]bool{},
		Loaded:           map[string]bool{},
		Properties:       map[string]string{},
		Restarts:         map[string]int{},
		FailAfterRestart: map[string]bool{},
		RestartErr:       map[string]error{},
	}
}

func (f *Fake) DaemonReload(ctx context.Context) error {
	f.Reloads++
	return nil
}

func (f *Fake) RestartUnit(ctx context.Context, unit string) error {
	f.Restarts[unit]++
	if err := f.RestartErr[unit]; err != nil {
		return err
	}
	f.Active[unit] = !f.FailAfterRestart[unit]
	return nil
}

func (f *Fake) EnableUnit(ctx context.Context, unit string) error {
	f.Enabled = append(f.Enabled, unit)
	return nil
}

func (f *Fake) IsActive(ctx context.Context, unit string) (bool, error) {
	return f.Active[unit], nil
}

func (f *Fake) UnitExists(ctx context.Context, unit string) (bool, error) {
	if len(f.Loaded) == 0 {
		// default: everything the test marked active also exists
		return f.Active[unit], nil
	}
	return f.Loaded[unit], nil
}

func (f *Fake) ShowProperty(ctx context.Context, unit, property string) (string, error) {
	if v, ok := f.Properties[unit+"/"+property]; ok {
		return v, nil
	}
	return "", fmt.Errorf("no such property %s for %s", property, unit)
}

var _ Client = (*Fake)(nil)
