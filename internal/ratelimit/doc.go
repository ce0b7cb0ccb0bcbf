// Package ratelimit provides per-client rate limiting for the app listener,
// with background eviction of idle clients and a cap on tracked clients.
//
// It is in-memory and per pod. Kubelet probe paths can be exempted so a
// noisy client never turns into a failed liveness check.
package ratelimit
