package devpi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	apierr "github.com/devpi-tools/devpi-client/pkg/errors"
)

// IndexConfig describes a devpi index. User and Name are not part of the
// server payload; they are injected from the call context during parsing.
type IndexConfig struct {
	User                       string   `json:"user"`
	Name                       string   `json:"name"`
	Type                       string   `json:"type"`
	Bases                      []string `json:"bases"`
	Volatile                   bool     `json:"volatile"`
	ACLUpload                  []string `json:"acl_upload"`
	ACLToxresultUpload         []string `json:"acl_toxresult_upload"`
	MirrorWhitelist            []string `json:"mirror_whitelist"`
	MirrorWhitelistInheritance string   `json:"mirror_whitelist_inheritance"`
	Projects                   []string `json:"projects"`
}

// Path returns the index's "user/name" spec.
func (ic *IndexConfig) Path() string {
	return ic.User + "/" + ic.Name
}

func validateIndexType(typ string) error {
	if err := validation.Validate(typ, validation.In("stage", "mirror")); err != nil {
		return apierr.New(apierr.CodeValidation, "index type must be \"stage\" or \"mirror\", got %q", typ)
	}
	return nil
}

func parseIndexConfig(raw any, user, name string) (*IndexConfig, error) {
	obj, err := asObject(unwrapResult(raw), "index config")
	if err != nil {
		return nil, err
	}
	injectDefaults(obj, map[string]any{"user": user, "name": name})
	var cfg IndexConfig
	if err := decodeRecord(obj, &cfg, "index config"); err != nil {
		return nil, err
	}
	if cfg.Type == "" {
		return nil, apierr.New(apierr.CodeResponseParsing, "index config missing type")
	}
	return &cfg, nil
}

func parseIndexMap(entries map[string]any, user string) (map[string]IndexConfig, error) {
	out := make(map[string]IndexConfig, len(entries))
	for name, rawCfg := range entries {
		entry, err := asObject(rawCfg, fmt.Sprintf("config of index %q", name))
		if err != nil {
			return nil, err
		}
		injectDefaults(entry, map[string]any{"user": user, "name": name})
		var cfg IndexConfig
		if err := decodeRecord(entry, &cfg, fmt.Sprintf("config of index %q", name)); err != nil {
			return nil, err
		}
		out[name] = cfg
	}
	return out, nil
}

// IndexAPI groups index management operations. Access it via Client.Index.
type IndexAPI struct {
	c *Client
}

// CreateIndexOptions customizes index creation. The zero value creates a
// volatile stage index with no bases.
type CreateIndexOptions struct {
	// Type is the index type, "stage" when empty.
	Type string

	// Bases lists inherited indexes as "user/name" specs.
	Bases []string

	// Volatile controls whether releases may be overwritten. Defaults to
	// true.
	Volatile *bool

	ACLUpload          []string
	ACLToxresultUpload []string

	MirrorWhitelist            []string
	MirrorWhitelistInheritance *string
}

// Create creates an index and returns its configuration as read back from
// the server.
func (a *IndexAPI) Create(ctx context.Context, user, name string, opts *CreateIndexOptions) (*IndexConfig, error) {
	if err := validateNonEmpty("user", user); err != nil {
		return nil, err
	}
	if err := validateNonEmpty("name", name); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &CreateIndexOptions{}
	}
	typ := opts.Type
	if typ == "" {
		typ = "stage"
	}
	if err := validateIndexType(typ); err != nil {
		return nil, err
	}
	volatile := true
	if opts.Volatile != nil {
		volatile = *opts.Volatile
	}

	payload := map[string]any{"type": typ, "volatile": volatile}
	if opts.Bases != nil {
		payload["bases"] = opts.Bases
	}
	if opts.ACLUpload != nil {
		payload["acl_upload"] = opts.ACLUpload
	}
	if opts.ACLToxresultUpload != nil {
		payload["acl_toxresult_upload"] = opts.ACLToxresultUpload
	}
	if opts.MirrorWhitelist != nil {
		payload["mirror_whitelist"] = opts.MirrorWhitelist
	}
	if opts.MirrorWhitelistInheritance != nil {
		payload["mirror_whitelist_inheritance"] = *opts.MirrorWhitelistInheritance
	}

	path := "/" + user + "/" + name
	if _, err := a.c.do(ctx, http.MethodPut, path, requestOptions{json: payload}); err != nil {
		return nil, err
	}
	a.c.logger.Info("created index", "index", user+"/"+name, "type", typ)
	return a.Get(ctx, user, name)
}

// Get fetches an index's configuration without its project listing.
func (a *IndexAPI) Get(ctx context.Context, user, name string) (*IndexConfig, error) {
	return a.get(ctx, user, name, url.Values{"no_projects": {""}})
}

// GetWithProjects fetches an index's configuration including the names of
// the projects it serves.
func (a *IndexAPI) GetWithProjects(ctx context.Context, user, name string) (*IndexConfig, error) {
	return a.get(ctx, user, name, nil)
}

func (a *IndexAPI) get(ctx context.Context, user, name string, query url.Values) (*IndexConfig, error) {
	if err := validateNonEmpty("user", user); err != nil {
		return nil, err
	}
	if err := validateNonEmpty("name", name); err != nil {
		return nil, err
	}
	raw, err := a.c.do(ctx, http.MethodGet, "/"+user+"/"+name, requestOptions{query: query})
	if err != nil {
		return nil, err
	}
	return parseIndexConfig(raw, user, name)
}

// ModifyIndexOptions carries the index attributes to change. Nil fields and
// an empty Type are left untouched on the server.
type ModifyIndexOptions struct {
	// Type switches the index type, "stage" or "mirror".
	Type string

	Bases                      []string
	Volatile                   *bool
	ACLUpload                  []string
	ACLToxresultUpload         []string
	MirrorWhitelist            []string
	MirrorWhitelistInheritance *string
}

// Modify patches an index's configuration and returns the updated config as
// read back from the server. At least one attribute must be set.
func (a *IndexAPI) Modify(ctx context.Context, user, name string, opts *ModifyIndexOptions) (*IndexConfig, error) {
	if err := validateNonEmpty("user", user); err != nil {
		return nil, err
	}
	if err := validateNonEmpty("name", name); err != nil {
		return nil, err
	}

	payload := map[string]any{}
	if opts != nil {
		if opts.Type != "" {
			if err := validateIndexType(opts.Type); err != nil {
				return nil, err
			}
			payload["type"] = opts.Type
		}
		if opts.Bases != nil {
			payload["bases"] = opts.Bases
		}
		if opts.Volatile != nil {
			payload["volatile"] = *opts.Volatile
		}
		if opts.ACLUpload != nil {
			payload["acl_upload"] = opts.ACLUpload
		}
		if opts.ACLToxresultUpload != nil {
			payload["acl_toxresult_upload"] = opts.ACLToxresultUpload
		}
		if opts.MirrorWhitelist != nil {
			payload["mirror_whitelist"] = opts.MirrorWhitelist
		}
		if opts.MirrorWhitelistInheritance != nil {
			payload["mirror_whitelist_inheritance"] = *opts.MirrorWhitelistInheritance
		}
	}
	if len(payload) == 0 {
		return nil, apierr.New(apierr.CodeValidation, "no attributes provided to modify")
	}

	if _, err := a.c.do(ctx, http.MethodPatch, "/"+user+"/"+name, requestOptions{json: payload}); err != nil {
		return nil, err
	}
	a.c.logger.Info("modified index", "index", user+"/"+name)
	return a.Get(ctx, user, name)
}

// Delete removes an index and everything it contains.
func (a *IndexAPI) Delete(ctx context.Context, user, name string) (*DeleteResponse, error) {
	if err := validateNonEmpty("user", user); err != nil {
		return nil, err
	}
	if err := validateNonEmpty("name", name); err != nil {
		return nil, err
	}
	raw, err := a.c.do(ctx, http.MethodDelete, "/"+user+"/"+name, requestOptions{})
	if err != nil {
		return nil, err
	}
	a.c.logger.Info("deleted index", "index", user+"/"+name)
	return parseDeleteResponse(raw)
}

// List fetches all indexes belonging to a user, keyed by index name.
func (a *IndexAPI) List(ctx context.Context, user string) (map[string]IndexConfig, error) {
	if err := validateNonEmpty("user", user); err != nil {
		return nil, err
	}
	raw, err := a.c.do(ctx, http.MethodGet, "/"+user, requestOptions{})
	if err != nil {
		return nil, err
	}
	obj, err := asObject(unwrapResult(raw), "index listing")
	if err != nil {
		return nil, err
	}
	if nested, ok := obj["indexes"].(map[string]any); ok {
		obj = nested
	} else if _, ok := obj["username"]; ok {
		// user record with no indexes key
		return map[string]IndexConfig{}, nil
	}
	return parseIndexMap(obj, user)
}

// Exists reports whether an index exists. Only a definitive "not found"
// answer from the server maps to false; other failures are returned as
// errors.
func (a *IndexAPI) Exists(ctx context.Context, user, name string) (bool, error) {
	_, err := a.Get(ctx, user, name)
	if err != nil {
		if apierr.Is(err, apierr.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
