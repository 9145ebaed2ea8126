package autoclaim

import (
	"math/rand"
	"time"
)

// Bucket classifies how long the loop waits before the next check and how
// aggressively repeat notifications are suppressed while waiting.
type Bucket int

const (
	// BucketLong: next claim is more than an hour away.
	BucketLong Bucket = iota
	// BucketMedium: next claim is between 15 minutes and an hour away.
	BucketMedium
	// BucketShort: next claim is at most 15 minutes away (or already past).
	BucketShort
	// BucketUnknown: the server reported no usable next-claim time.
	BucketUnknown
	// BucketCycleDone: a claim cycle just finished, successful or not.
	BucketCycleDone
	// BucketTransient: a network or transport level failure, retry soon.
	BucketTransient
	// BucketRateLimited: the server asked us to back off hard.
	BucketRateLimited
)

func (b Bucket) String() string {
	switch b {
	case BucketLong:
		return "long"
	case BucketMedium:
		return "medium"
	case BucketShort:
		return "short"
	case BucketUnknown:
		return "unknown"
	case BucketCycleDone:
		return "cycle-done"
	case BucketTransient:
		return "transient"
	case BucketRateLimited:
		return "rate-limited"
	default:
		return "invalid"
	}
}

// waitBucket maps the remaining time until eligibility onto a bucket.
// known is false when the server response carried no next-claim timestamp.
// Exactly one hour falls into the medium bucket and exactly fifteen minutes
// into the short bucket; the comparisons are strict on purpose.
func waitBucket(remaining time.Duration, known bool) Bucket {
	if !known {
		return BucketUnknown
	}
	switch {
	case remaining > time.Hour:
		return BucketLong
	case remaining > 15*time.Minute:
		return BucketMedium
	default:
		return BucketShort
	}
}

// sleepFor draws the randomized wait duration for the bucket. remaining is
// only consulted by the short bucket, which sleeps through the remaining
// window plus a small jitter so the check lands just after eligibility.
func (b Bucket) sleepFor(remaining time.Duration, rng *rand.Rand) time.Duration {
	switch b {
	case BucketLong:
		return uniform(rng, 25*time.Minute, 35*time.Minute)
	case BucketShort:
		if remaining < 0 {
			remaining = 0
		}
		return remaining + uniform(rng, 10*time.Second, 45*time.Second)
	case BucketTransient:
		return uniform(rng, 2*time.Minute, 5*time.Minute)
	case BucketRateLimited:
		return uniform(rng, 45*time.Minute, 75*time.Minute)
	default: // medium, unknown, cycle-done
		return uniform(rng, 5*time.Minute, 10*time.Minute)
	}
}

// suppression returns the minimum interval between user-facing wait
// notifications while in this bucket. Zero means every wait is announced.
func (b Bucket) suppression() time.Duration {
	switch b {
	case BucketLong:
		return 2 * time.Hour
	case BucketMedium:
		return 45 * time.Minute
	default:
		return 0
	}
}

// claimJitter is the short randomized pause before submitting a claim, so
// submissions do not land at the exact eligibility instant.
func claimJitter(rng *rand.Rand) time.Duration {
	return uniform(rng, 5*time.Second, 15*time.Second)
}

func uniform(rng *rand.Rand, lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rng.Int63n(int64(hi-lo)))
}
