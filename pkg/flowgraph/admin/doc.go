// Package admin serves the administrative HTTP surface of a Manager.
//
// Routes:
//
//	GET    /healthz
//	GET    /metrics
//	GET    /apps
//	GET    /apps/{identity}
//	POST   /apps/{identity}                   deploy ({"path": ...} or ?transient=true with a raw body)
//	DELETE /apps/{identity}
//	POST   /apps/{identity}/redeploy
//	POST   /validate                          raw body or ?path=
//	GET    /apps/{identity}/visualize/{flow}  ?format=dot|svg|png
//	POST   /apps/{identity}/run/{flow}        JSON document in, document out
//
// Errors are JSON objects with an "error" field. Their status comes from
// the error taxonomy in the errors package.
package admin
