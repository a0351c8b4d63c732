package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/posfleet-core/internal/fleet"
)

// counter is a Fetcher that returns how many times it has been called.
type counter struct{ calls int }

func (c *counter) fetch(context.Context) (any, error) {
	c.calls++
	return c.calls, nil
}

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{"bare", NewKey(CollectionPosDevices), "pos_devices"},
		{"sorted", NewKey(CollectionPosDevices, "status", "offline", "customer_id", "c1"), "pos_devices?customer_id=c1&status=offline"},
		{"escaped", NewKey(CollectionCustomers, "name", "a&b c"), "customers?name=a%26b+c"},
		{"empty params", Key{Collection: CollectionAlerts, Params: map[string]string{}}, "alerts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}

	a := NewKey(CollectionPosDevices, "a", "1", "b", "2")
	b := NewKey(CollectionPosDevices, "b", "2", "a", "1")
	if a.String() != b.String() {
		t.Errorf("parameter order changed the key: %q vs %q", a, b)
	}
}

func TestCache_GetCachesUntilStale(t *testing.T) {
	ctx := context.Background()
	c := NewCache()
	key := NewKey(CollectionPosDevices)
	src := &counter{}

	if !c.IsStale(key) {
		t.Error("missing entry should be stale")
	}
	for i := 0; i < 3; i++ {
		v, err := c.Get(ctx, key, src.fetch)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if v != 1 {
			t.Errorf("Get() = %v, want cached 1", v)
		}
	}
	if c.IsStale(key) {
		t.Error("fresh entry reported stale")
	}

	c.MarkStale(CollectionPosDevices)
	if !c.IsStale(key) {
		t.Error("entry not stale after MarkStale")
	}
	if v, _ := c.Get(ctx, key, src.fetch); v != 2 {
		t.Errorf("Get() after MarkStale = %v, want 2", v)
	}
}

func TestCache_FailedFetchKeepsEntry(t *testing.T) {
	ctx := context.Background()
	c := NewCache()
	key := NewKey(CollectionAlerts)
	src := &counter{}

	c.Get(ctx, key, src.fetch) //nolint:errcheck // Priming
	c.MarkStale(CollectionAlerts)

	boom := errors.New("boom")
	if _, err := c.Get(ctx, key, func(context.Context) (any, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("Get() error = %v, want boom", err)
	}
	if !c.IsStale(key) {
		t.Error("entry should still be stale after a failed fetch")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestCache_MarkStaleCoversAllParams(t *testing.T) {
	ctx := context.Background()
	c := NewCache()
	src := &counter{}
	all := NewKey(CollectionPosDevices)
	offline := NewKey(CollectionPosDevices, "status", "offline")
	branches := NewKey(CollectionBranches)
	for _, k := range []Key{all, offline, branches} {
		c.Get(ctx, k, src.fetch) //nolint:errcheck // Priming
	}

	if n := c.MarkStale(CollectionPosDevices); n != 2 {
		t.Errorf("MarkStale() = %d, want 2", n)
	}
	if !c.IsStale(all) || !c.IsStale(offline) {
		t.Error("every pos_devices entry should be stale")
	}
	if c.IsStale(branches) {
		t.Error("branches should be untouched")
	}
	if n := c.MarkStale(); n != 0 {
		t.Errorf("MarkStale() with no collections = %d, want 0", n)
	}
}

func TestCache_ApplyEvents(t *testing.T) {
	at := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	statusChange := fleet.NewStatusChangeEvent(fleet.StatusChange{
		DeviceID:  "d1",
		OldStatus: fleet.DeviceActive,
		NewStatus: fleet.DeviceOffline,
	}, at)
	newAlert := fleet.NewAlertEvent(fleet.Alert{ID: "a1", Title: "Terminal offline"}, at)
	initial := fleet.NewInitialStatusEvent(fleet.StatusSnapshot{}, at)

	collections := []string{
		CollectionPosDevices, CollectionCustomers, CollectionAlerts,
		CollectionAlertsUnread, CollectionBranches, CollectionEmployees, CollectionSummary,
	}

	tests := []struct {
		name      string
		event     fleet.Event
		wantStale map[string]bool
	}{
		{
			name:  "device status change",
			event: statusChange,
			wantStale: map[string]bool{
				CollectionPosDevices: true, CollectionCustomers: true, CollectionSummary: true,
			},
		},
		{
			name:  "new alert",
			event: newAlert,
			wantStale: map[string]bool{
				CollectionAlerts: true, CollectionAlertsUnread: true, CollectionSummary: true,
			},
		},
		{
			name:  "initial status",
			event: initial,
			wantStale: map[string]bool{
				CollectionPosDevices: true, CollectionCustomers: true, CollectionAlerts: true,
				CollectionAlertsUnread: true, CollectionBranches: true, CollectionEmployees: true,
				CollectionSummary: true,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			c := NewCache()
			src := &counter{}
			for _, col := range collections {
				c.Get(ctx, NewKey(col), src.fetch) //nolint:errcheck // Priming
			}

			c.Apply(tt.event)

			for _, col := range collections {
				if got := c.IsStale(NewKey(col)); got != tt.wantStale[col] {
					t.Errorf("%s stale = %v, want %v", col, got, tt.wantStale[col])
				}
			}
		})
	}
}

func TestInvalidations_NeverTouchUnrelated(t *testing.T) {
	for typ, cols := range Invalidations {
		for _, col := range cols {
			if col == CollectionBranches || col == CollectionEmployees {
				t.Errorf("%s invalidates %s", typ, col)
			}
		}
	}
}
