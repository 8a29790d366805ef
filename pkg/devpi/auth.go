package devpi

import (
	"net/http"
	"strings"
)

// tokenUser is the username devpi expects alongside a token in basic auth.
const tokenUser = "__token__"

type authMode int

const (
	authNone authMode = iota
	authBasic
	authToken
)

type credentials struct {
	mode     authMode
	username string
	secret   string
}

func (cr credentials) apply(req *http.Request) {
	switch cr.mode {
	case authBasic:
		req.SetBasicAuth(cr.username, cr.secret)
	case authToken:
		req.SetBasicAuth(tokenUser, cr.secret)
	}
}

// SetBasic switches the client to password authentication, replacing any
// previously configured credentials.
func (c *Client) SetBasic(username, password string) error {
	if err := validateNonEmpty("username", username); err != nil {
		return err
	}
	if err := validateNonEmpty("password", password); err != nil {
		return err
	}
	c.creds = credentials{mode: authBasic, username: strings.TrimSpace(username), secret: password}
	c.logger.Debug("using password authentication", "username", c.creds.username)
	return nil
}

// SetToken switches the client to token authentication, replacing any
// previously configured credentials.
func (c *Client) SetToken(token string) error {
	if err := validateNonEmpty("token", token); err != nil {
		return err
	}
	c.creds = credentials{mode: authToken, secret: strings.TrimSpace(token)}
	c.logger.Debug("using token authentication")
	return nil
}

// Logout clears the client's credentials. Subsequent requests are sent
// unauthenticated.
func (c *Client) Logout() {
	c.creds = credentials{}
	c.logger.Debug("cleared credentials")
}

// IsAuthenticated reports whether the client currently holds credentials.
func (c *Client) IsAuthenticated() bool {
	return c.creds.mode != authNone
}
