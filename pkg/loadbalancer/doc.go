/*
Package loadbalancer owns the backend pool and dispatches requests through
a pluggable selection Strategy. It is the composition
root for the rest of ballast: Handle sends through the transport.Port and
updates the Backend's running stats and derived health for every request
it sends (WrapWithBreaker lets a caller put a circuit breaker around a send
function; Handle itself uses none). The
data flow is the same throughout: a strategy selects a healthy backend, the
request is sent, the backend's metadata is updated, and the strategy may
consume those metrics on the next selection.

Follows the overall "pool + strategy + middleware" shape an ingress proxy
uses, generalized from container/gRPC-backed backends to the abstract
transport.Port, and from a single round-robin index map to four
interchangeable Strategy implementations. TLS termination, ACME, and
gRPC-backed service discovery have no analog here (TLS and service
discovery are both out of scope) and are not carried over.
*/
package loadbalancer
