/*
Package health provides active health-check probes (HTTP and TCP) that the
load balancer layers on top of its passive, success-rate-derived backend
health. A Checker's Result, filtered through Status, reaches a backend via
LoadBalancer.UpdateProbeHealth, which sets a probe flag kept apart from the
success-rate flag; the backend counts as healthy only while both flags are
true (the two signals are ANDed).

Config carries interval/timeout/retries/start-period knobs in the same
shape Docker-style health checks use; Status tracks consecutive
failures/successes, marks Healthy false only after Retries consecutive
failures, and marks it true again on the first success, mirroring a
container orchestrator's liveness semantics without depending on a
container runtime.
*/
package health
