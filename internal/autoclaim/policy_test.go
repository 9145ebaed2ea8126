package autoclaim

import (
	"math/rand"
	"testing"
	"time"
)

func TestWaitBucketBoundaries(t *testing.T) {
	cases := []struct {
		name      string
		remaining time.Duration
		known     bool
		want      Bucket
	}{
		{"unknown frame", 0, false, BucketUnknown},
		{"well over an hour", 3 * time.Hour, true, BucketLong},
		{"just over an hour", time.Hour + time.Millisecond, true, BucketLong},
		{"exactly one hour", time.Hour, true, BucketMedium},
		{"thirty minutes", 30 * time.Minute, true, BucketMedium},
		{"just over fifteen minutes", 15*time.Minute + time.Millisecond, true, BucketMedium},
		{"exactly fifteen minutes", 15 * time.Minute, true, BucketShort},
		{"five minutes", 5 * time.Minute, true, BucketShort},
		{"already past", -2 * time.Minute, true, BucketShort},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := waitBucket(tc.remaining, tc.known); got != tc.want {
				t.Fatalf("waitBucket(%v, %v) = %v, want %v", tc.remaining, tc.known, got, tc.want)
			}
		})
	}
}

func TestSleepForRanges(t *testing.T) {
	cases := []struct {
		name      string
		bucket    Bucket
		remaining time.Duration
		lo, hi    time.Duration
	}{
		{"long", BucketLong, 2 * time.Hour, 25 * time.Minute, 35 * time.Minute},
		{"medium", BucketMedium, 30 * time.Minute, 5 * time.Minute, 10 * time.Minute},
		{"unknown", BucketUnknown, 0, 5 * time.Minute, 10 * time.Minute},
		{"cycle done", BucketCycleDone, 0, 5 * time.Minute, 10 * time.Minute},
		{"transient", BucketTransient, 0, 2 * time.Minute, 5 * time.Minute},
		{"rate limited", BucketRateLimited, 0, 45 * time.Minute, 75 * time.Minute},
		{"short adds jitter", BucketShort, 3 * time.Minute, 3*time.Minute + 10*time.Second, 3*time.Minute + 45*time.Second},
		{"short clamps past due", BucketShort, -10 * time.Minute, 10 * time.Second, 45 * time.Second},
	}
	rng := rand.New(rand.NewSource(1))
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for i := 0; i < 200; i++ {
				d := tc.bucket.sleepFor(tc.remaining, rng)
				if d < tc.lo || d > tc.hi {
					t.Fatalf("sleepFor out of range: %v not in [%v, %v]", d, tc.lo, tc.hi)
				}
			}
		})
	}
}

func TestSuppressionWindows(t *testing.T) {
	if got := BucketLong.suppression(); got != 2*time.Hour {
		t.Fatalf("long suppression = %v", got)
	}
	if got := BucketMedium.suppression(); got != 45*time.Minute {
		t.Fatalf("medium suppression = %v", got)
	}
	for _, b := range []Bucket{BucketShort, BucketUnknown, BucketCycleDone, BucketTransient, BucketRateLimited} {
		if got := b.suppression(); got != 0 {
			t.Fatalf("%v suppression = %v, want 0", b, got)
		}
	}
}

func TestClaimJitterRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		d := claimJitter(rng)
		if d < 5*time.Second || d > 15*time.Second {
			t.Fatalf("claimJitter out of range: %v", d)
		}
	}
}
