package cachefile

import (
	"errors"
	"testing"
	"time"
)

func TestIsValidBoundaries(t *testing.T) {
	now := time.UnixMilli(10_000_000_000)
	testCases := []struct {
		name    string
		policy  Policy
		elapsed int64
		want    bool
	}{
		{"hourly just inside", PolicySyncHourly, 3_599_999, true},
		{"hourly at boundary", PolicySyncHourly, 3_600_000, false},
		{"daily just inside", PolicySyncDaily, 86_399_999, true},
		{"daily at boundary", PolicySyncDaily, 86_400_000, false},
		{"hourly fresh", PolicySyncHourly, 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			meta := SyncMetadata{LastSyncMillis: now.UnixMilli() - tc.elapsed}
			if got := IsValid([]Policy{tc.policy}, meta, now); got != tc.want {
				t.Fatalf("IsValid = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsValidRequiresEveryPolicy(t *testing.T) {
	now := time.UnixMilli(10_000_000_000)
	meta := SyncMetadata{LastSyncMillis: now.UnixMilli() - 2*3_600_000, HasSynced: true}

	if !IsValid([]Policy{PolicySyncOnAppOpen, PolicySyncDaily}, meta, now) {
		t.Fatalf("both policies hold")
	}
	if IsValid([]Policy{PolicySyncOnAppOpen, PolicySyncHourly}, meta, now) {
		t.Fatalf("hourly policy is violated")
	}
	meta.HasSynced = false
	if IsValid([]Policy{PolicySyncOnAppOpen}, meta, now) {
		t.Fatalf("SYNC_ON_APP_OPEN requires a sync in this process")
	}
}

func TestIsValidEmptyPolicySet(t *testing.T) {
	if !IsValid(nil, SyncMetadata{}, time.Now()) {
		t.Fatalf("empty policy set must be valid")
	}
}

func TestIsValidPanicsOnUnknownPolicy(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("unknown policy should panic")
		}
	}()
	IsValid([]Policy{"sync_weekly"}, SyncMetadata{}, time.Now())
}

func TestParsePolicy(t *testing.T) {
	for raw, want := range map[string]Policy{
		"SYNC_ON_APP_OPEN": PolicySyncOnAppOpen,
		"sync_hourly":      PolicySyncHourly,
		" Sync_Daily ":     PolicySyncDaily,
	} {
		got, err := ParsePolicy(raw)
		if err != nil || got != want {
			t.Fatalf("ParsePolicy(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParsePolicy("hourly"); !errors.Is(err, ErrUnknownPolicy) {
		t.Fatalf("expected ErrUnknownPolicy, got %v", err)
	}
}

func TestNormalizePoliciesDeduplicates(t *testing.T) {
	got, err := normalizePolicies([]Policy{PolicySyncDaily, PolicySyncDaily, PolicySyncHourly})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(got) != 2 || got[0] != PolicySyncDaily || got[1] != PolicySyncHourly {
		t.Fatalf("unexpected policies: %v", got)
	}
}
