// Package httputil holds the JSON response writers, request parsing helpers
// and middleware shared by the HTTP API.
//
//	var req AddDependencyRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // 400 already written
//	}
//	httputil.WriteCreated(w, edge)
package httputil
