package devpi

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/spf13/afero"

	"github.com/devpi-tools/devpi-client/pkg/buildinfo"
	apierr "github.com/devpi-tools/devpi-client/pkg/errors"
	"github.com/devpi-tools/devpi-client/pkg/metadata"
	"github.com/devpi-tools/devpi-client/pkg/session"
)

// defaultTimeout bounds requests when the config does not set one.
const defaultTimeout = 30 * time.Second

// Config holds settings for creating a devpi client.
type Config struct {
	// BaseURL is the root URL of the devpi server, e.g. "http://localhost:3141".
	BaseURL string

	// Username and Password enable password authentication. Both must be
	// set together. Ignored when Token is set.
	Username string
	Password string

	// Token enables token authentication and takes precedence over
	// Username/Password.
	Token string

	// Timeout bounds each request. Defaults to 30 seconds.
	Timeout time.Duration

	// HTTPClient overrides the transport. Defaults to a pooled client.
	HTTPClient *http.Client

	// Logger receives structured diagnostics. Defaults to a silent logger.
	Logger *log.Logger

	// Fs is the filesystem used for package uploads. Defaults to the OS
	// filesystem.
	Fs afero.Fs

	// Extractor reads metadata from package archives before upload.
	// Defaults to a file extractor over Fs.
	Extractor metadata.Extractor

	// Codec decodes token containers for offline inspection. Defaults to
	// the macaroon codec.
	Codec TokenCodec
}

func (c Config) validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, validation.By(checkHTTPURL)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return apierr.Wrap(apierr.CodeValidation, err, "invalid client configuration")
	}
	if c.Token == "" {
		hasUser := strings.TrimSpace(c.Username) != ""
		hasPass := c.Password != ""
		if hasUser != hasPass {
			return apierr.New(apierr.CodeValidation, "username and password must be provided together")
		}
	}
	return nil
}

func checkHTTPURL(value interface{}) error {
	s, _ := value.(string)
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return stderrors.New("must start with http:// or https://")
	}
	return nil
}

// Client is a devpi server API client. Create one with New and release its
// connections with Close. Resource operations are grouped on the User,
// Index, Project, and Token fields.
type Client struct {
	baseURL   string
	http      *http.Client
	logger    *log.Logger
	userAgent string
	fs        afero.Fs
	extractor metadata.Extractor
	codec     TokenCodec
	creds     credentials

	User    *UserAPI
	Index   *IndexAPI
	Project *ProjectAPI
	Token   *TokenAPI
}

// New creates a devpi client from the given configuration.
func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
	} else {
		// Copy so the caller's client is never mutated.
		clone := *httpClient
		httpClient = &clone
	}
	if httpClient.Timeout == 0 {
		httpClient.Timeout = timeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	fsys := cfg.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	extractor := cfg.Extractor
	if extractor == nil {
		extractor = metadata.NewExtractor(fsys)
	}
	codec := cfg.Codec
	if codec == nil {
		codec = MacaroonCodec{}
	}

	c := &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http:      httpClient,
		logger:    logger,
		userAgent: buildinfo.UserAgent(),
		fs:        fsys,
		extractor: extractor,
		codec:     codec,
	}
	c.User = &UserAPI{c: c}
	c.Index = &IndexAPI{c: c}
	c.Project = &ProjectAPI{c: c}
	c.Token = &TokenAPI{c: c}

	switch {
	case cfg.Token != "":
		if err := c.SetToken(cfg.Token); err != nil {
			return nil, err
		}
	case strings.TrimSpace(cfg.Username) != "":
		if err := c.SetBasic(cfg.Username, cfg.Password); err != nil {
			return nil, err
		}
	}

	logger.Debug("initialized devpi client", "base_url", c.baseURL, "authenticated", c.IsAuthenticated())
	return c, nil
}

// Close releases idle connections held by the underlying transport.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	c.logger.Debug("closed devpi client")
	return nil
}

// With runs fn against a client built from cfg and closes it afterwards.
func With(cfg Config, fn func(*Client) error) (err error) {
	c, err := New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(c)
}

// BaseURL returns the normalized server root this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ServerInfo fetches the server's +api document, which carries version and
// feature information.
func (c *Client) ServerInfo(ctx context.Context) (map[string]any, error) {
	raw, err := c.do(ctx, http.MethodGet, "/+api", requestOptions{})
	if err != nil {
		return nil, err
	}
	return asObject(unwrapResult(raw), "server info")
}

// SaveLogin persists the client's token login to the given store and
// returns the stored record. Only token credentials are persisted; password
// logins are refused so secrets never reach disk.
func (c *Client) SaveLogin(ctx context.Context, store session.Store, ttl time.Duration) (*session.Login, error) {
	if c.creds.mode != authToken {
		return nil, apierr.New(apierr.CodeValidation, "only token logins can be saved")
	}
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	username := ""
	if info, ierr := c.Token.Inspect(c.creds.secret); ierr == nil {
		username = info.User
	}
	login := session.New(c.baseURL, username, c.creds.secret, ttl)
	if err := store.Set(ctx, login); err != nil {
		return nil, err
	}
	c.logger.Debug("saved login", "id", login.ID)
	return login, nil
}

// Restore builds an authenticated client from a saved login.
func Restore(ctx context.Context, store session.Store, id string) (*Client, error) {
	login, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if login == nil {
		return nil, apierr.New(apierr.CodeAuthentication, "no valid saved login %q", id)
	}
	return New(Config{BaseURL: login.BaseURL, Token: login.Token})
}
