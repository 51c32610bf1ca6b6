package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// StatusProbe is the body of GET status/. Older servers report token
// details instead of a single authenticated flag.
type StatusProbe struct {
	Status        string       `json:"status"`
	Time          string       `json:"time"`
	Authenticated *bool        `json:"authenticated,omitempty"`
	Token         *TokenStatus `json:"token,omitempty"`
}

// TokenStatus is the legacy token detail of the status probe.
type TokenStatus struct {
	Present bool `json:"present"`
	Found   bool `json:"found"`
	Valid   bool `json:"valid"`
	Expired bool `json:"expired"`
}

// IsAuthenticated reports what the server thinks of the presented token.
// known is false when the probe says nothing about authentication, which
// includes a legacy probe that never saw the token.
func (p StatusProbe) IsAuthenticated() (authenticated, known bool) {
	if p.Authenticated != nil {
		return *p.Authenticated, true
	}
	if p.Token != nil {
		if !p.Token.Present {
			return false, false
		}
		return p.Token.Found && p.Token.Valid && !p.Token.Expired, true
	}
	return false, false
}

// TokenMissing reports a legacy probe in which the server did not receive a
// token at all.
func (p StatusProbe) TokenMissing() bool {
	return p.Authenticated == nil && p.Token != nil && !p.Token.Present
}

// Status probes server reachability. The token is attached when present;
// the probe never triggers revalidation.
func (c *Client) Status(ctx context.Context) (StatusProbe, Response) {
	resp := c.Do(ctx, Request{Method: http.MethodGet, Path: "status", Auth: true, NoRevalidate: true})
	var probe StatusProbe
	if resp.OK() && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &probe); err != nil {
			c.logger.Warn("undecodable status probe", "error", err)
		}
	}
	return probe, resp
}

// Get fetches a resource.
func (c *Client) Get(ctx context.Context, path string, auth bool) Response {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Auth: auth})
}

// CurrentUser fetches the logged-in user. It is used to validate the
// session, so it never triggers revalidation.
func (c *Client) CurrentUser(ctx context.Context) Response {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: "user/me", Auth: true, NoRevalidate: true})
}

// UserByID fetches a public user profile.
func (c *Client) UserByID(ctx context.Context, id string) Response {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: "user/" + url.PathEscape(id), Auth: true})
}

// InvalidateToken revokes the current token on the server.
func (c *Client) InvalidateToken(ctx context.Context) Response {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: "auth/invalidate", Auth: true, NoRevalidate: true})
}

// InvalidateAllTokens revokes every token of the current user.
func (c *Client) InvalidateAllTokens(ctx context.Context) Response {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: "auth/invalidate-all", Auth: true, NoRevalidate: true})
}

// CipherSubmissions lists the current user's submissions for a cipher.
func (c *Client) CipherSubmissions(ctx context.Context, cipherID string) Response {
	return c.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   "ciphers/" + url.PathEscape(cipherID) + "/submissions",
		Auth:   true,
	})
}
