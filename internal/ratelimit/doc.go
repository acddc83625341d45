// Package ratelimit implements per-caller admission control with continuously
// refilling token buckets.
//
// Each caller key owns one Bucket holding a fractional token balance. A call
// to IsAllowed refills the key's bucket for the time elapsed since its last
// use (capped at capacity) and consumes one token when at least one is
// available. There is no background refill.
//
// Buckets are created on the first request for a key with an atomic
// insert-if-absent, so concurrent first requests for the same key always
// share a single bucket. Every bucket has its own mutex; requests for
// different keys never contend.
//
// The limiter keeps every bucket for the life of the process unless Sweep
// (or Run) is used to drop buckets that have been idle long enough to have
// refilled completely.
package ratelimit
