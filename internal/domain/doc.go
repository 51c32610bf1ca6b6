// Package domain defines the portal's records as the client sees them.
//
// Records are decoded from the API's JSON and validated on the way in.
// References to other records are kept as IDs; callers resolve them
// against whatever holds the referenced records with Resolve and
// ResolveAll, so a record never goes stale when the referenced model is
// refreshed.
package domain
