// Package api is the HTTP request gateway to the portal API. It builds
// authenticated and anonymous requests, normalizes every outcome (including
// transport failures and timeouts) into a Response envelope, and reacts to
// 401 responses on authenticated requests by revalidating the session and
// retrying once.
package api
