// Package httpmw provides HTTP middleware for the app listener.
//
// httpserver.NewHandler composes it outermost first: recover, security
// headers, request ID, client IP, rate limiting, OTel, build headers,
// metrics, request logger, access log, then the chi router.
//
// User-supplied data (query values, user-agent, arbitrary headers) stays out
// of the logs.
package httpmw
