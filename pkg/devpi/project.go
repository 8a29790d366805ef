package devpi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	apierr "github.com/devpi-tools/devpi-client/pkg/errors"
	"github.com/devpi-tools/devpi-client/pkg/metadata"
)

// LogEntry records one action in a release file's history.
type LogEntry struct {
	What  string `json:"what"`
	Who   string `json:"who"`
	When  []int  `json:"when"`
	Count int    `json:"count"`
	Dst   string `json:"dst"`
}

// Link points at one artifact attached to a release, such as a package
// file or a toxresult.
type Link struct {
	Rel      string     `json:"rel"`
	Href     string     `json:"href"`
	HashSpec string     `json:"hash_spec"`
	Log      []LogEntry `json:"log"`
}

// ProjectVersion holds the metadata of one released version of a project.
// The field set follows the Python core-metadata specification, which is
// what devpi stores per release.
type ProjectVersion struct {
	Name                   string   `json:"name"`
	Version                string   `json:"version"`
	MetadataVersion        string   `json:"metadata_version"`
	Summary                string   `json:"summary"`
	Description            string   `json:"description"`
	DescriptionContentType string   `json:"description_content_type"`
	Keywords               string   `json:"keywords"`
	HomePage               string   `json:"home_page"`
	DownloadURL            string   `json:"download_url"`
	Author                 string   `json:"author"`
	AuthorEmail            string   `json:"author_email"`
	Maintainer             string   `json:"maintainer"`
	MaintainerEmail        string   `json:"maintainer_email"`
	License                string   `json:"license"`
	LicenseExpression      string   `json:"license_expression"`
	LicenseFile            []string `json:"license_file"`
	Classifiers            []string `json:"classifiers"`
	Platform               []string `json:"platform"`
	SupportedPlatform      []string `json:"supported_platform"`
	ProjectURLs            []string `json:"project_urls"`
	RequiresDist           []string `json:"requires_dist"`
	RequiresExternal       []string `json:"requires_external"`
	RequiresPython         string   `json:"requires_python"`
	ProvidesDist           []string `json:"provides_dist"`
	ProvidesExtras         []string `json:"provides_extras"`
	ObsoletesDist          []string `json:"obsoletes_dist"`
	Dynamic                []string `json:"dynamic"`
	Comment                string   `json:"comment"`
	Links                  []Link   `json:"+links"`
}

func parseProjectVersions(raw any) (map[string]ProjectVersion, error) {
	obj, err := asObject(unwrapResult(raw), "project versions")
	if err != nil {
		return nil, err
	}
	out := make(map[string]ProjectVersion, len(obj))
	for version, rawVer := range obj {
		entry, err := asObject(rawVer, fmt.Sprintf("metadata of version %q", version))
		if err != nil {
			return nil, err
		}
		injectDefaults(entry, map[string]any{"version": version})
		var pv ProjectVersion
		if err := decodeRecord(entry, &pv, fmt.Sprintf("metadata of version %q", version)); err != nil {
			return nil, err
		}
		if pv.Name == "" || pv.Version == "" {
			return nil, apierr.New(apierr.CodeResponseParsing, "version %q metadata missing name or version", version)
		}
		out[version] = pv
	}
	return out, nil
}

// ProjectAPI groups package and release operations on an index. Access it
// via Client.Project.
type ProjectAPI struct {
	c *Client
}

// List returns the names of all projects served by an index.
func (a *ProjectAPI) List(ctx context.Context, user, index string) ([]string, error) {
	cfg, err := a.c.Index.GetWithProjects(ctx, user, index)
	if err != nil {
		return nil, err
	}
	if cfg.Projects == nil {
		return []string{}, nil
	}
	return cfg.Projects, nil
}

// Get fetches the released versions of a project, keyed by version string.
func (a *ProjectAPI) Get(ctx context.Context, user, index, project string) (map[string]ProjectVersion, error) {
	if err := validateNonEmpty("user", user); err != nil {
		return nil, err
	}
	if err := validateNonEmpty("index", index); err != nil {
		return nil, err
	}
	if err := validateNonEmpty("project", project); err != nil {
		return nil, err
	}
	raw, err := a.c.do(ctx, http.MethodGet, "/"+user+"/"+index+"/"+project, requestOptions{})
	if err != nil {
		return nil, err
	}
	return parseProjectVersions(raw)
}

// Upload pushes a package file to an index. The file's name, version, and
// summary are read from the archive itself. Supported archive types are
// listed by metadata.SupportedExtensions.
func (a *ProjectAPI) Upload(ctx context.Context, user, index, path string) error {
	if err := validateNonEmpty("user", user); err != nil {
		return err
	}
	if err := validateNonEmpty("index", index); err != nil {
		return err
	}
	if err := validateNonEmpty("filepath", path); err != nil {
		return err
	}
	if !metadata.Supported(path) {
		return apierr.New(apierr.CodeValidation, "unsupported package file type %q (supported: %s)",
			filepath.Base(path), strings.Join(metadata.SupportedExtensions(), ", "))
	}
	if _, err := a.c.fs.Stat(path); err != nil {
		return err
	}

	meta, err := a.c.extractor.Extract(path)
	if err != nil {
		return apierr.Wrap(apierr.CodeValidation, err, "could not read package metadata from %s", filepath.Base(path))
	}
	if meta.Name == "" || meta.Version == "" {
		return apierr.New(apierr.CodeValidation, "package metadata in %s is missing name or version", filepath.Base(path))
	}

	body, contentType, err := a.buildUploadForm(path, meta)
	if err != nil {
		return err
	}
	if _, err := a.c.doRaw(ctx, http.MethodPost, "/"+user+"/"+index, requestOptions{body: body, contentType: contentType}); err != nil {
		return err
	}
	a.c.logger.Info("uploaded package", "index", user+"/"+index, "name", meta.Name, "version", meta.Version)
	return nil
}

func (a *ProjectAPI) buildUploadForm(path string, meta *metadata.Metadata) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := [][2]string{
		{":action", "file_upload"},
		{"protocol_version", "1"},
		{"name", meta.Name},
		{"version", meta.Version},
	}
	if meta.Summary != "" {
		fields = append(fields, [2]string{"summary", meta.Summary})
	}
	for _, field := range fields {
		if err := mw.WriteField(field[0], field[1]); err != nil {
			return nil, "", apierr.Wrap(apierr.CodeValidation, err, "build upload form")
		}
	}

	fw, err := mw.CreateFormFile("content", filepath.Base(path))
	if err != nil {
		return nil, "", apierr.Wrap(apierr.CodeValidation, err, "build upload form")
	}
	f, err := a.c.fs.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	if _, err := io.Copy(fw, f); err != nil {
		return nil, "", apierr.Wrap(apierr.CodeValidation, err, "read package file %s", filepath.Base(path))
	}
	if err := mw.Close(); err != nil {
		return nil, "", apierr.Wrap(apierr.CodeValidation, err, "build upload form")
	}
	return &buf, mw.FormDataContentType(), nil
}

// Delete removes one released version of a project, or the whole project
// when version is empty.
func (a *ProjectAPI) Delete(ctx context.Context, user, index, project, version string) (*DeleteResponse, error) {
	if err := validateNonEmpty("user", user); err != nil {
		return nil, err
	}
	if err := validateNonEmpty("index", index); err != nil {
		return nil, err
	}
	if err := validateNonEmpty("project", project); err != nil {
		return nil, err
	}
	path := "/" + user + "/" + index + "/" + project
	if version != "" {
		path += "/" + version
	}
	raw, err := a.c.do(ctx, http.MethodDelete, path, requestOptions{})
	if err != nil {
		return nil, err
	}
	a.c.logger.Info("deleted project", "index", user+"/"+index, "project", project, "version", version)
	return parseDeleteResponse(raw)
}

// Exists reports whether a project, or one specific version of it when
// version is non-empty, exists on an index.
func (a *ProjectAPI) Exists(ctx context.Context, user, index, project, version string) (bool, error) {
	versions, err := a.Get(ctx, user, index, project)
	if err != nil {
		if apierr.Is(err, apierr.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	if version == "" {
		return len(versions) > 0, nil
	}
	_, ok := versions[version]
	return ok, nil
}
