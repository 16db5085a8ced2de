package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackctl/internal/apiclient"
)

// fileServer stores uploads in memory and serves them back.
type fileServer struct {
	mu       sync.Mutex
	files    map[uuid.UUID]apiclient.File
	contents map[uuid.UUID][]byte
	queries  []url.Values
}

func newFileServer(t *testing.T) *fileServer {
	t.Helper()
	s := &fileServer{files: make(map[uuid.UUID]apiclient.File), contents: make(map[uuid.UUID][]byte)}

	r := chi.NewRouter()
	r.Post("/api/v1/files/upload", s.upload)
	r.Get("/api/v1/files/{id}/download", s.download)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	orig := newAPIClient
	newAPIClient = func(cmd *cobra.Command) (*apiclient.Client, error) {
		return apiclient.New(srv.URL+"/api/v1", apiclient.NewMemorySession("token"),
			apiclient.WithNavigator(cliNavigator{w: cmd.ErrOrStderr()}))
	}
	t.Cleanup(func() { newAPIClient = orig })

	apiOutput, apiContentType, apiResponsible, apiVisibleUnit, apiVisibleFunctions = "", "", "", "", nil
	return s
}

func (s *fileServer) upload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, `{"detail":"Field required"}`, http.StatusUnprocessableEntity)
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(file)
	f := apiclient.File{
		ID:               uuid.New(),
		OriginalFilename: header.Filename,
		ContentType:      header.Header.Get("Content-Type"),
		FileSize:         int64(len(data)),
	}
	s.mu.Lock()
	s.files[f.ID] = f
	s.contents[f.ID] = data
	s.queries = append(s.queries, r.URL.Query())
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(f)
}

func (s *fileServer) download(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	s.mu.Lock()
	f, found := s.files[id]
	data := s.contents[id]
	s.mu.Unlock()
	if err != nil || !found {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"File not found"}`))
		return
	}
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+f.OriginalFilename+`"`)
	_, _ = w.Write(data)
}

func (s *fileServer) only(t *testing.T) apiclient.File {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.files, 1)
	for _, f := range s.files {
		return f
	}
	return apiclient.File{}
}

func TestAPIFilesUploadAndDownload(t *testing.T) {
	root := newWorkspace(t, nil)
	s := newFileServer(t)

	src := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("quarterly numbers"), 0o644))
	bu := uuid.New()
	fn1, fn2 := uuid.New(), uuid.New()

	out, err := execute(t, root, "api", "files", "upload", src,
		"--visible-bu", bu.String(),
		"--visible-function", fn1.String(), "--visible-function", fn2.String())
	require.NoError(t, err)
	assert.Contains(t, out, "uploaded notes.txt")

	f := s.only(t)
	assert.Equal(t, "notes.txt", f.OriginalFilename)
	assert.Contains(t, f.ContentType, "text/plain")
	require.Len(t, s.queries, 1)
	assert.Equal(t, bu.String(), s.queries[0].Get("visible_bu_id"))
	assert.Equal(t, fn1.String()+","+fn2.String(), s.queries[0].Get("visible_function_ids"))
	assert.Empty(t, s.queries[0].Get("responsible_function_id"))

	dst := filepath.Join(t.TempDir(), "copy.txt")
	_, err = execute(t, root, "api", "files", "download", f.ID.String(), "-o", dst)
	require.NoError(t, err)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "quarterly numbers", string(data))

	apiOutput = ""
	out, err = execute(t, root, "api", "files", "download", f.ID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "quarterly numbers")
}

func TestAPIFilesDownloadMissingRemovesOutput(t *testing.T) {
	root := newWorkspace(t, nil)
	newFileServer(t)

	dst := filepath.Join(t.TempDir(), "missing.bin")
	_, err := execute(t, root, "api", "files", "download", uuid.NewString(), "-o", dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "File not found")
	assert.NoFileExists(t, dst)
}

func TestAPIFilesUploadRejectsBadIDs(t *testing.T) {
	root := newWorkspace(t, nil)
	s := newFileServer(t)

	src := filepath.Join(t.TempDir(), "a.csv")
	require.NoError(t, os.WriteFile(src, []byte("a,b\n"), 0o644))

	_, err := execute(t, root, "api", "files", "upload", src, "--responsible-function", "payroll")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--responsible-function")
	assert.Empty(t, s.queries)
}
