// Package health provides composable probes and the HTTP handlers that
// expose them on the /-/healthy and /-/ready endpoints.
//
// Probes combine with [All] (AND); [Fixed] is static, [Flag] follows a bool and
// [CheckFunc] adapts a plain function. [ShutdownGate] fails readiness once
// shutdown starts so the orchestrator drains traffic before the listeners
// close.
package health
