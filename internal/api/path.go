package api

import "strings"

// NormalizePath turns an endpoint locator into the form the API expects:
// a redundant "/api" prefix is stripped, the path gets exactly one leading
// slash and, unless the last segment names a file such as "auto.json", a
// trailing slash. A query string is preserved.
func NormalizePath(p string) string {
	path, query, hasQuery := strings.Cut(p, "?")

	if path == "/api" || strings.HasPrefix(path, "/api/") {
		path = path[len("/api"):]
	}
	path = "/" + strings.TrimLeft(path, "/")

	last := path[strings.LastIndex(path, "/")+1:]
	if !strings.HasSuffix(path, "/") && !strings.Contains(last, ".") {
		path += "/"
	}

	if hasQuery {
		return path + "?" + query
	}
	return path
}
