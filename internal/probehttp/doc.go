// Package probehttp exposes the probe state over HTTP:
//
//	GET  /healthz  200 "I am alive!" or 500 "Crashed!"
//	GET  /ready    200 "Ready!" or 500 "Not Ready!"
//	POST /toggle   200 "Readiness set to <bool>"
//	POST /crash    200 "Liveness set to false"
//
// Request bodies, headers and query strings are ignored.
package probehttp
