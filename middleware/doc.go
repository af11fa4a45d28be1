// Package middleware adapts engine session validation to net/http.
//
// [RequireSession] reads the bearer token from the session cookie or the
// Authorization header, validates it through the engine, and injects the
// resulting session into the request context. It makes no authentication
// decisions of its own; everything is delegated to Engine.ValidateSession.
package middleware
