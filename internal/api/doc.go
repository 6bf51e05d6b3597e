// Package api exposes the backend over HTTP as a JSON API.
//
// Routes are registered on a plain http.ServeMux using method
// patterns. The handler stack is recovery, request id, then logging;
// health probes sit outside the middleware so a noisy logger never
// obscures a liveness check.
package api
