package devpi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	apierr "github.com/devpi-tools/devpi-client/pkg/errors"
)

// UserInfo describes a devpi user account.
type UserInfo struct {
	Username string                 `json:"username"`
	Email    string                 `json:"email"`
	Indexes  map[string]IndexConfig `json:"indexes"`
	Created  time.Time              `json:"created"`
}

// normalizeUserObject backfills the username and the per-index context
// identifiers the server omits. Mutates obj in place.
func normalizeUserObject(obj map[string]any, fallbackUsername string) {
	if fallbackUsername != "" {
		injectDefaults(obj, map[string]any{"username": fallbackUsername})
	}
	username, _ := obj["username"].(string)
	if rawIdx, ok := obj["indexes"].(map[string]any); ok {
		for name, rawCfg := range rawIdx {
			if entry, ok := rawCfg.(map[string]any); ok {
				injectDefaults(entry, map[string]any{"user": username, "name": name})
			}
		}
	}
}

func parseUserInfo(raw any, fallbackUsername string) (*UserInfo, error) {
	obj, err := asObject(unwrapResult(raw), "user info")
	if err != nil {
		return nil, err
	}
	normalizeUserObject(obj, fallbackUsername)
	var u UserInfo
	if err := decodeRecord(obj, &u, "user info"); err != nil {
		return nil, err
	}
	if u.Username == "" {
		return nil, apierr.New(apierr.CodeResponseParsing, "user info missing username")
	}
	return &u, nil
}

func parseUserList(raw any) (map[string]UserInfo, error) {
	inner := unwrapResult(raw)
	if obj, ok := inner.(map[string]any); ok {
		if nested, ok := obj["users"]; ok {
			inner = nested
		}
	}

	switch v := inner.(type) {
	case []any:
		// some server versions return a bare list of usernames
		out := make(map[string]UserInfo, len(v))
		for _, item := range v {
			name, ok := item.(string)
			if !ok {
				return nil, apierr.New(apierr.CodeResponseParsing, "user listing entries must be strings, got %T", item)
			}
			out[name] = UserInfo{Username: name, Indexes: map[string]IndexConfig{}}
		}
		return out, nil
	case map[string]any:
		out := make(map[string]UserInfo, len(v))
		for name, rawUser := range v {
			entry, ok := rawUser.(map[string]any)
			if !ok {
				// non-object entry, keep whatever the server sent as the email
				email := ""
				if rawUser != nil {
					email = fmt.Sprint(rawUser)
				}
				out[name] = UserInfo{Username: name, Email: email, Indexes: map[string]IndexConfig{}}
				continue
			}
			normalizeUserObject(entry, name)
			var u UserInfo
			if err := decodeRecord(entry, &u, fmt.Sprintf("user %q", name)); err != nil {
				return nil, err
			}
			if u.Username == "" {
				u.Username = name
			}
			out[name] = u
		}
		return out, nil
	default:
		return nil, apierr.New(apierr.CodeResponseParsing, "user listing must be an object or array, got %T", inner)
	}
}

// parseUserCreateResponse tolerates the different shapes create returns
// across server versions: a full record under "result", or just a bare
// username field.
func parseUserCreateResponse(raw any) (*UserInfo, error) {
	obj, err := asObject(raw, "user creation response")
	if err != nil {
		return nil, err
	}
	resultObj, _ := obj["result"].(map[string]any)

	username := ""
	if resultObj != nil {
		username, _ = resultObj["username"].(string)
	}
	if username == "" {
		username, _ = obj["username"].(string)
	}
	if username == "" {
		return nil, apierr.New(apierr.CodeResponseParsing, "user creation response missing username")
	}

	if resultObj != nil {
		normalizeUserObject(resultObj, username)
		var u UserInfo
		if err := decodeRecord(resultObj, &u, "user creation response"); err != nil {
			return nil, err
		}
		return &u, nil
	}
	return &UserInfo{Username: username, Indexes: map[string]IndexConfig{}}, nil
}

// UserAPI groups user account operations. Access it via Client.User.
type UserAPI struct {
	c *Client
}

// Create registers a new user account and returns the created record.
func (a *UserAPI) Create(ctx context.Context, username, password, email string) (*UserInfo, error) {
	if err := validateNonEmpty("username", username); err != nil {
		return nil, err
	}
	if err := validateNonEmpty("password", password); err != nil {
		return nil, err
	}
	payload := map[string]any{"password": password}
	if e := strings.TrimSpace(email); e != "" {
		payload["email"] = e
	}
	raw, err := a.c.do(ctx, http.MethodPut, "/"+username, requestOptions{json: payload})
	if err != nil {
		return nil, err
	}
	a.c.logger.Info("created user", "username", username)
	return parseUserCreateResponse(raw)
}

// Get fetches a user account.
func (a *UserAPI) Get(ctx context.Context, username string) (*UserInfo, error) {
	if err := validateNonEmpty("username", username); err != nil {
		return nil, err
	}
	raw, err := a.c.do(ctx, http.MethodGet, "/"+username, requestOptions{})
	if err != nil {
		return nil, err
	}
	return parseUserInfo(raw, username)
}

// ModifyUserOptions carries the user attributes to change. Nil fields are
// left untouched on the server.
type ModifyUserOptions struct {
	Password *string
	Email    *string
}

// Modify patches a user account and returns the updated record as read
// back from the server. At least one attribute must be set, and supplied
// attributes must be non-empty.
func (a *UserAPI) Modify(ctx context.Context, username string, opts *ModifyUserOptions) (*UserInfo, error) {
	if err := validateNonEmpty("username", username); err != nil {
		return nil, err
	}

	payload := map[string]any{}
	if opts != nil {
		if opts.Password != nil {
			if *opts.Password == "" {
				return nil, apierr.New(apierr.CodeValidation, "password cannot be empty")
			}
			payload["password"] = *opts.Password
		}
		if opts.Email != nil {
			if strings.TrimSpace(*opts.Email) == "" {
				return nil, apierr.New(apierr.CodeValidation, "email cannot be empty when provided")
			}
			payload["email"] = strings.TrimSpace(*opts.Email)
		}
	}
	if len(payload) == 0 {
		return nil, apierr.New(apierr.CodeValidation, "no attributes provided to modify")
	}

	if _, err := a.c.do(ctx, http.MethodPatch, "/"+username, requestOptions{json: payload}); err != nil {
		return nil, err
	}
	a.c.logger.Info("modified user", "username", username)
	return a.Get(ctx, username)
}

// ChangePassword updates a user's password.
func (a *UserAPI) ChangePassword(ctx context.Context, username, password string) (*UserInfo, error) {
	if err := validateNonEmpty("password", password); err != nil {
		return nil, err
	}
	return a.Modify(ctx, username, &ModifyUserOptions{Password: &password})
}

// ChangeEmail updates a user's email address.
func (a *UserAPI) ChangeEmail(ctx context.Context, username, email string) (*UserInfo, error) {
	if err := validateNonEmpty("email", email); err != nil {
		return nil, err
	}
	return a.Modify(ctx, username, &ModifyUserOptions{Email: &email})
}

// Delete removes a user account and all of its indexes.
func (a *UserAPI) Delete(ctx context.Context, username string) (*DeleteResponse, error) {
	if err := validateNonEmpty("username", username); err != nil {
		return nil, err
	}
	raw, err := a.c.do(ctx, http.MethodDelete, "/"+username, requestOptions{})
	if err != nil {
		return nil, err
	}
	a.c.logger.Info("deleted user", "username", username)
	return parseDeleteResponse(raw)
}

// List fetches all user accounts on the server, keyed by username.
func (a *UserAPI) List(ctx context.Context) (map[string]UserInfo, error) {
	raw, err := a.c.do(ctx, http.MethodGet, "/", requestOptions{})
	if err != nil {
		return nil, err
	}
	return parseUserList(raw)
}

// Exists reports whether a user account exists. Only a definitive "not
// found" answer from the server maps to false.
func (a *UserAPI) Exists(ctx context.Context, username string) (bool, error) {
	_, err := a.Get(ctx, username)
	if err != nil {
		if apierr.Is(err, apierr.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
