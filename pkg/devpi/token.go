package devpi

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	apierr "github.com/devpi-tools/devpi-client/pkg/errors"
)

// Permissions a token can be restricted to. The user_* permissions exist
// server-side but are not suggested in error messages.
var (
	publicPermissions = []string{
		"del_entry",
		"del_project",
		"del_verdata",
		"index_create",
		"index_delete",
		"index_modify",
		"pkg_read",
		"toxresult_upload",
		"upload",
	}
	hiddenPermissions = []string{
		"user_create",
		"user_delete",
		"user_login",
		"user_modify",
	}
	knownPermissions = func() map[string]struct{} {
		m := make(map[string]struct{}, len(publicPermissions)+len(hiddenPermissions))
		for _, p := range publicPermissions {
			m[p] = struct{}{}
		}
		for _, p := range hiddenPermissions {
			m[p] = struct{}{}
		}
		return m
	}()
)

// TokenInfo describes an access token. The structured fields Allowed,
// Expires, Indexes, and Projects are derived from the raw Restrictions
// strings; restrictions with unknown keys stay in Restrictions only.
type TokenInfo struct {
	ID           string   `json:"id"`
	User         string   `json:"user"`
	Allowed      []string `json:"allowed"`
	Expires      int64    `json:"expires"`
	Indexes      []string `json:"indexes"`
	Projects     []string `json:"projects"`
	Restrictions []string `json:"restrictions"`
}

// flattenRestrictions derives the structured fields from the raw
// restriction strings. Entries without "=" or with unrecognized keys are
// left alone. When a key repeats, the last occurrence wins, matching
// observed server behavior.
func flattenRestrictions(info *TokenInfo) {
	for _, item := range info.Restrictions {
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		switch key {
		case "expires":
			if ts, err := strconv.ParseInt(value, 10, 64); err == nil {
				info.Expires = ts
			}
		case "allowed":
			info.Allowed = strings.Split(value, ",")
		case "indexes":
			info.Indexes = strings.Split(value, ",")
		case "projects":
			info.Projects = strings.Split(value, ",")
		}
	}
}

func parseTokenList(raw any, user string) (map[string]TokenInfo, error) {
	obj, err := asObject(unwrapResult(raw), "token listing")
	if err != nil {
		return nil, err
	}
	if nested, ok := obj["tokens"].(map[string]any); ok {
		obj = nested
	}
	out := make(map[string]TokenInfo, len(obj))
	for id, rawTok := range obj {
		entry, err := asObject(rawTok, fmt.Sprintf("token %q", id))
		if err != nil {
			return nil, err
		}
		injectDefaults(entry, map[string]any{"id": id, "user": user})
		var info TokenInfo
		if err := decodeRecord(entry, &info, fmt.Sprintf("token %q", id)); err != nil {
			return nil, err
		}
		flattenRestrictions(&info)
		out[id] = info
	}
	return out, nil
}

func validatePermissions(perms []string) ([]string, error) {
	if len(perms) == 0 {
		return nil, nil
	}
	cleaned := make([]string, 0, len(perms))
	var unknown []string
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, apierr.New(apierr.CodeValidation, "permission names must be non-empty strings")
		}
		if _, ok := knownPermissions[p]; !ok {
			unknown = append(unknown, p)
		}
		cleaned = append(cleaned, p)
	}
	if len(unknown) > 0 {
		return nil, apierr.New(apierr.CodeValidation, "unknown permissions: %s (valid permissions: %s)",
			strings.Join(unknown, ", "), strings.Join(publicPermissions, ", "))
	}
	slices.Sort(cleaned)
	return slices.Compact(cleaned), nil
}

// TokenAPI groups access token operations. Access it via Client.Token.
type TokenAPI struct {
	c *Client
}

// CreateTokenOptions restricts a new token. The zero value creates an
// unrestricted token.
type CreateTokenOptions struct {
	// Allowed limits the token to the named permissions.
	Allowed []string

	// ExpiresIn sets the token's lifetime relative to now. Zero means no
	// expiry; negative values are rejected.
	ExpiresIn time.Duration

	// Indexes limits the token to the named indexes.
	Indexes []string

	// Projects limits the token to the named projects.
	Projects []string
}

// Create issues a new token for a user and returns the opaque token
// string. The token secret is only available at creation time.
func (a *TokenAPI) Create(ctx context.Context, username string, opts *CreateTokenOptions) (string, error) {
	if err := validateNonEmpty("username", username); err != nil {
		return "", err
	}
	if opts == nil {
		opts = &CreateTokenOptions{}
	}
	allowed, err := validatePermissions(opts.Allowed)
	if err != nil {
		return "", err
	}
	if opts.ExpiresIn < 0 {
		return "", apierr.New(apierr.CodeValidation, "token expiry must be positive")
	}

	payload := map[string]any{}
	if len(allowed) > 0 {
		payload["allowed"] = allowed
	}
	if opts.ExpiresIn > 0 {
		payload["expires"] = time.Now().Add(opts.ExpiresIn).Unix()
	}
	if len(opts.Indexes) > 0 {
		payload["indexes"] = opts.Indexes
	}
	if len(opts.Projects) > 0 {
		payload["projects"] = opts.Projects
	}

	raw, err := a.c.do(ctx, http.MethodPost, "/"+username+"/+token-create", requestOptions{json: payload})
	if err != nil {
		return "", err
	}
	obj, err := asObject(unwrapResult(raw), "token creation response")
	if err != nil {
		return "", err
	}
	token, _ := obj["token"].(string)
	if token == "" {
		return "", apierr.New(apierr.CodeResponseParsing, "token creation response missing token")
	}
	a.c.logger.Info("created token", "username", username)
	return token, nil
}

// List fetches a user's tokens, keyed by token ID.
func (a *TokenAPI) List(ctx context.Context, username string) (map[string]TokenInfo, error) {
	if err := validateNonEmpty("username", username); err != nil {
		return nil, err
	}
	raw, err := a.c.do(ctx, http.MethodGet, "/"+username+"/+tokens", requestOptions{})
	if err != nil {
		return nil, err
	}
	return parseTokenList(raw, username)
}

// Delete revokes a token by ID.
func (a *TokenAPI) Delete(ctx context.Context, username, tokenID string) (*DeleteResponse, error) {
	if err := validateNonEmpty("username", username); err != nil {
		return nil, err
	}
	if err := validateNonEmpty("token_id", tokenID); err != nil {
		return nil, err
	}
	raw, err := a.c.do(ctx, http.MethodDelete, "/"+username+"/+tokens/"+tokenID, requestOptions{})
	if err != nil {
		return nil, err
	}
	a.c.logger.Info("deleted token", "username", username, "token_id", tokenID)
	return parseDeleteResponse(raw)
}

// Exists reports whether a user has a token with the given ID.
func (a *TokenAPI) Exists(ctx context.Context, username, tokenID string) (bool, error) {
	if err := validateNonEmpty("token_id", tokenID); err != nil {
		return false, err
	}
	tokens, err := a.List(ctx, username)
	if err != nil {
		if apierr.Is(err, apierr.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	_, ok := tokens[tokenID]
	return ok, nil
}

// tokenPrefix precedes the encoded container in tokens issued by
// devpi-tokens.
const tokenPrefix = "devpi-"

// Inspect decodes a token string locally, without contacting the server,
// and returns the identity and restrictions embedded in it. The token's
// signature is not verified.
func (a *TokenAPI) Inspect(token string) (*TokenInfo, error) {
	if err := validateNonEmpty("token", token); err != nil {
		return nil, err
	}
	blob := strings.TrimPrefix(strings.TrimSpace(token), tokenPrefix)

	identifier, caveats, err := a.c.codec.Decode(blob)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeResponseParsing, err, "failed to parse token")
	}
	sep := strings.LastIndex(identifier, "-")
	if sep < 0 {
		return nil, apierr.New(apierr.CodeResponseParsing, "invalid token identifier %q", identifier)
	}

	info := &TokenInfo{
		User:         identifier[:sep],
		ID:           identifier[sep+1:],
		Restrictions: caveats,
	}
	flattenRestrictions(info)
	return info, nil
}
