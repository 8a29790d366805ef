package devpi

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/afero"

	apierr "github.com/devpi-tools/devpi-client/pkg/errors"
)

const demoWheelMetadata = "Metadata-Version: 2.1\nName: demo\nVersion: 1.0.0\nSummary: A demo package\n\n"

func writeWheel(t *testing.T, fsys afero.Fs, path string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("demo-1.0.0.dist-info/METADATA")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if _, err := f.Write([]byte(demoWheelMetadata)); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := afero.WriteFile(fsys, path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write wheel: %v", err)
	}
}

func newUploadClient(t *testing.T, handler http.Handler, fsys afero.Fs) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Username: "root", Password: "secret", Fs: fsys})
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestProjectGet(t *testing.T) {
	c := newTestClient(t, jsonHandler(200, `{
		"result": {
			"1.0.0": {
				"name": "demo",
				"version": "1.0.0",
				"summary": "A demo package",
				"requires_python": ">=3.8",
				"+links": [
					{"rel": "releasefile", "href": "http://x/demo-1.0.0.whl", "hash_spec": "sha256=abc"}
				]
			},
			"0.9.0": {"name": "demo", "version": "0.9.0"}
		},
		"type": "projectconfig"
	}`))

	versions, err := c.Project.Get(context.Background(), "root", "dev", "demo")
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("got %d versions, want 2", len(versions))
	}
	v1 := versions["1.0.0"]
	if v1.Summary != "A demo package" || v1.RequiresPython != ">=3.8" {
		t.Errorf("version 1.0.0 = %+v", v1)
	}
	if len(v1.Links) != 1 || v1.Links[0].Rel != "releasefile" {
		t.Errorf("Links = %+v", v1.Links)
	}
}

func TestProjectGetIncompleteMetadata(t *testing.T) {
	c := newTestClient(t, jsonHandler(200, `{"result": {"1.0.0": {"summary": "no name"}}}`))
	_, err := c.Project.Get(context.Background(), "root", "dev", "demo")
	if !apierr.Is(err, apierr.CodeResponseParsing) {
		t.Errorf("code = %q, want RESPONSE_PARSING", apierr.GetCode(err))
	}
}

func TestProjectList(t *testing.T) {
	var query string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Write([]byte(`{"result": {"type": "stage", "projects": ["demo", "other"]}}`))
	}))

	projects, err := c.Project.List(context.Background(), "root", "dev")
	if err != nil {
		t.Fatalf("List() returned error: %v", err)
	}
	if query != "" {
		t.Errorf("query = %q, listing must not suppress projects", query)
	}
	if !reflect.DeepEqual(projects, []string{"demo", "other"}) {
		t.Errorf("projects = %v", projects)
	}
}

func TestProjectListEmpty(t *testing.T) {
	c := newTestClient(t, jsonHandler(200, `{"result": {"type": "stage"}}`))
	projects, err := c.Project.List(context.Background(), "root", "dev")
	if err != nil {
		t.Fatalf("List() returned error: %v", err)
	}
	if projects == nil || len(projects) != 0 {
		t.Errorf("projects = %#v, want empty non-nil slice", projects)
	}
}

func TestProjectUpload(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeWheel(t, fsys, "/dist/demo-1.0.0-py3-none-any.whl")

	var form map[string]string
	var fileName string
	var fileSize int
	c := newUploadClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/root/dev" {
			t.Errorf("request = %s %s, want POST /root/dev", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart form: %v", err)
		}
		form = map[string]string{}
		for key, values := range r.MultipartForm.Value {
			form[key] = values[0]
		}
		fh := r.MultipartForm.File["content"][0]
		fileName = fh.Filename
		fileSize = int(fh.Size)
		w.Write([]byte(`{"message": "ok"}`))
	}), fsys)

	if err := c.Project.Upload(context.Background(), "root", "dev", "/dist/demo-1.0.0-py3-none-any.whl"); err != nil {
		t.Fatalf("Upload() returned error: %v", err)
	}

	want := map[string]string{
		":action":          "file_upload",
		"protocol_version": "1",
		"name":             "demo",
		"version":          "1.0.0",
		"summary":          "A demo package",
	}
	if !reflect.DeepEqual(form, want) {
		t.Errorf("form fields = %v, want %v", form, want)
	}
	if fileName != "demo-1.0.0-py3-none-any.whl" {
		t.Errorf("file name = %q", fileName)
	}
	if fileSize == 0 {
		t.Error("uploaded file is empty")
	}
}

func TestProjectUploadUnsupportedType(t *testing.T) {
	fsys := afero.NewMemMapFs()
	afero.WriteFile(fsys, "/dist/demo.zip", []byte("x"), 0644)

	counter := &countingHandler{}
	c := newUploadClient(t, counter, fsys)

	err := c.Project.Upload(context.Background(), "root", "dev", "/dist/demo.zip")
	if !apierr.Is(err, apierr.CodeValidation) {
		t.Fatalf("code = %q, want VALIDATION", apierr.GetCode(err))
	}
	if msg := apierr.UserMessage(err); !strings.Contains(msg, ".whl") {
		t.Errorf("message = %q, should name the supported extensions", msg)
	}
	if counter.calls.Load() != 0 {
		t.Errorf("server got %d requests, rejection must precede network I/O", counter.calls.Load())
	}
}

func TestProjectUploadMissingFile(t *testing.T) {
	counter := &countingHandler{}
	c := newUploadClient(t, counter, afero.NewMemMapFs())

	err := c.Project.Upload(context.Background(), "root", "dev", "/dist/ghost-1.0.0.whl")
	if err == nil {
		t.Fatal("Upload() should fail for a missing file")
	}
	// filesystem failures pass through untranslated
	if code := apierr.GetCode(err); code != "" {
		t.Errorf("code = %q, want a plain filesystem error", code)
	}
	if counter.calls.Load() != 0 {
		t.Errorf("server got %d requests", counter.calls.Load())
	}
}

func TestProjectUploadCorruptArchive(t *testing.T) {
	fsys := afero.NewMemMapFs()
	afero.WriteFile(fsys, "/dist/bad-1.0.0.whl", []byte("not a zip"), 0644)

	c := newUploadClient(t, &countingHandler{}, fsys)
	err := c.Project.Upload(context.Background(), "root", "dev", "/dist/bad-1.0.0.whl")
	if !apierr.Is(err, apierr.CodeValidation) {
		t.Errorf("code = %q, want VALIDATION", apierr.GetCode(err))
	}
}

func TestProjectDelete(t *testing.T) {
	var path string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`{"message": "release deleted"}`))
	}))

	if _, err := c.Project.Delete(context.Background(), "root", "dev", "demo", "1.0.0"); err != nil {
		t.Fatalf("Delete() returned error: %v", err)
	}
	if path != "/root/dev/demo/1.0.0" {
		t.Errorf("path = %q, want /root/dev/demo/1.0.0", path)
	}

	if _, err := c.Project.Delete(context.Background(), "root", "dev", "demo", ""); err != nil {
		t.Fatalf("Delete() returned error: %v", err)
	}
	if path != "/root/dev/demo" {
		t.Errorf("path = %q, want whole-project path when version is empty", path)
	}
}

func TestProjectExists(t *testing.T) {
	c := newTestClient(t, jsonHandler(200, `{"result": {"1.0.0": {"name": "demo", "version": "1.0.0"}}}`))

	ok, err := c.Project.Exists(context.Background(), "root", "dev", "demo", "")
	if err != nil || !ok {
		t.Errorf("Exists(any version) = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = c.Project.Exists(context.Background(), "root", "dev", "demo", "1.0.0")
	if err != nil || !ok {
		t.Errorf("Exists(1.0.0) = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = c.Project.Exists(context.Background(), "root", "dev", "demo", "2.0.0")
	if err != nil || ok {
		t.Errorf("Exists(2.0.0) = (%v, %v), want (false, nil)", ok, err)
	}

	missing := newTestClient(t, jsonHandler(404, `{"message": "no such project"}`))
	ok, err = missing.Project.Exists(context.Background(), "root", "dev", "ghost", "")
	if err != nil || ok {
		t.Errorf("Exists(missing project) = (%v, %v), want (false, nil)", ok, err)
	}
}
