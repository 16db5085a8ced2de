package apiclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	testUser     = "admin@example.com"
	testPassword = "changethis"
	validToken   = "valid-token"
)

// fakeBackend serves the subset of the backend API the client uses.
type fakeBackend struct {
	*httptest.Server

	mu        sync.Mutex
	units     map[uuid.UUID]BusinessUnit
	functions map[uuid.UUID]Function
	files     map[uuid.UUID]File
	contents  map[uuid.UUID][]byte
	uploads   []url.Values
	hits      map[string]int
	auth      []string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		units:     make(map[uuid.UUID]BusinessUnit),
		functions: make(map[uuid.UUID]Function),
		files:     make(map[uuid.UUID]File),
		contents:  make(map[uuid.UUID][]byte),
		hits:      make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(b.count)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login/access-token", b.login)
		r.Group(func(r chi.Router) {
			r.Use(b.requireToken)
			r.Get("/users/me", b.me)
			r.Get("/business-units/", b.listUnits)
			r.Post("/business-units/", b.createUnit)
			r.Get("/business-units/{id}", b.getUnit)
			r.Patch("/business-units/{id}", b.updateUnit)
			r.Delete("/business-units/{id}", b.deleteUnit)
			r.Get("/functions/", b.listFunctions)
			r.Post("/functions/", b.createFunction)
			r.Get("/functions/{id}", b.getFunction)
			r.Delete("/functions/{id}", b.deleteFunction)
			r.Get("/files/", b.listFiles)
			r.Post("/files/upload", b.uploadFile)
			r.Get("/files/{id}", b.getFile)
			r.Get("/files/{id}/download", b.downloadFile)
			r.Get("/files/{id}/url", b.fileURL)
			r.Delete("/files/{id}", b.deleteFile)
		})
	})

	b.Server = httptest.NewServer(r)
	t.Cleanup(b.Close)
	return b
}

func (b *fakeBackend) APIURL() string {
	return b.Server.URL + "/api/v1"
}

func (b *fakeBackend) Hits(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[method+" "+path]
}

func (b *fakeBackend) AuthHeaders() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.auth...)
}

func (b *fakeBackend) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits[r.Method+" "+r.URL.Path]++
		b.auth = append(b.auth, r.Header.Get("Authorization"))
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func detail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func (b *fakeBackend) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		switch {
		case h == "":
			detail(w, http.StatusUnauthorized, "Not authenticated")
		case h != "Bearer "+validToken:
			detail(w, http.StatusForbidden, "Could not validate credentials")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (b *fakeBackend) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("username") != testUser || r.PostForm.Get("password") != testPassword {
		detail(w, http.StatusBadRequest, "Incorrect email or password")
		return
	}
	writeJSON(w, http.StatusOK, Token{AccessToken: validToken, TokenType: "bearer"})
}

func (b *fakeBackend) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, User{ID: uuid.New(), Email: testUser, IsActive: true, IsSuperuser: true})
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"detail": []map[string]interface{}{{"loc": []interface{}{"path", "id"}, "msg": "Input should be a valid UUID", "type": "uuid_parsing"}},
		})
		return uuid.Nil, false
	}
	return id, true
}

func (b *fakeBackend) listUnits(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BusinessUnit, 0, len(b.units))
	for _, u := range b.units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit < len(out) {
		out = out[:limit]
	}
	writeJSON(w, http.StatusOK, Page[BusinessUnit]{Data: out, Count: len(b.units)})
}

func (b *fakeBackend) createUnit(w http.ResponseWriter, r *http.Request) {
	var in BusinessUnitCreate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"detail": []map[string]interface{}{{"loc": []interface{}{"body", "name"}, "msg": "Field required", "type": "missing"}},
		})
		return
	}
	now := time.Now().UTC()
	bu := BusinessUnit{ID: uuid.New(), Name: in.Name, Code: in.Code, Description: in.Description, IsActive: in.IsActive, CreatedAt: &now}
	b.mu.Lock()
	b.units[bu.ID] = bu
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, bu)
}

func (b *fakeBackend) getUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	bu, found := b.units[id]
	b.mu.Unlock()
	if !found {
		detail(w, http.StatusNotFound, "Business unit not found")
		return
	}
	writeJSON(w, http.StatusOK, bu)
}

func (b *fakeBackend) updateUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in BusinessUnitUpdate
	_ = json.NewDecoder(r.Body).Decode(&in)

	b.mu.Lock()
	defer b.mu.Unlock()
	bu, found := b.units[id]
	if !found {
		detail(w, http.StatusNotFound, "Business unit not found")
		return
	}
	if in.Name != nil {
		bu.Name = *in.Name
	}
	if in.IsActive != nil {
		bu.IsActive = *in.IsActive
	}
	b.units[id] = bu
	writeJSON(w, http.StatusOK, bu)
}

func (b *fakeBackend) deleteUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, found := b.units[id]; !found {
		detail(w, http.StatusNotFound, "Business unit not found")
		return
	}
	delete(b.units, id)
	writeJSON(w, http.StatusOK, Message{Message: "Business unit deleted successfully"})
}

func (b *fakeBackend) listFunctions(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	filter := r.URL.Query().Get("business_unit_id")
	out := []Function{}
	for _, f := range b.functions {
		if filter == "" || f.BusinessUnitID.String() == filter {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	writeJSON(w, http.StatusOK, Page[Function]{Data: out, Count: len(out)})
}

func (b *fakeBackend) createFunction(w http.ResponseWriter, r *http.Request) {
	var in FunctionCreate
	_ = json.NewDecoder(r.Body).Decode(&in)

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.units[in.BusinessUnitID]; !ok {
		detail(w, http.StatusNotFound, "Business unit not found")
		return
	}
	fn := Function{ID: uuid.New(), Name: in.Name, Code: in.Code, IsActive: in.IsActive, BusinessUnitID: in.BusinessUnitID}
	b.functions[fn.ID] = fn
	writeJSON(w, http.StatusOK, fn)
}

func (b *fakeBackend) getFunction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	fn, found := b.functions[id]
	b.mu.Unlock()
	if !found {
		detail(w, http.StatusNotFound, "Function not found")
		return
	}
	writeJSON(w, http.StatusOK, fn)
}

func (b *fakeBackend) deleteFunction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.functions, id)
	writeJSON(w, http.StatusOK, Message{Message: "Function deleted successfully"})
}

func (b *fakeBackend) addFile(name string) File {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := File{ID: uuid.New(), Filename: uuid.NewString() + ".pdf", OriginalFilename: name, ContentType: "application/pdf", FileSize: 1024, OwnerID: uuid.New()}
	b.files[f.ID] = f
	b.contents[f.ID] = []byte("%PDF-1.7 " + name)
	return f
}

// Uploads returns the query of every upload received.
func (b *fakeBackend) Uploads() []url.Values {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]url.Values(nil), b.uploads...)
}

func (b *fakeBackend) uploadFile(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"detail": []map[string]interface{}{{"loc": []interface{}{"body", "file"}, "msg": "Field required", "type": "missing"}},
		})
		return
	}
	defer file.Close()
	if header.Filename == "" {
		detail(w, http.StatusUnprocessableEntity, "File name cannot be empty")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		detail(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read file: %v", err))
		return
	}

	f := File{
		ID:               uuid.New(),
		Filename:         uuid.NewString(),
		OriginalFilename: header.Filename,
		ContentType:      header.Header.Get("Content-Type"),
		FileSize:         int64(len(data)),
		OwnerID:          uuid.New(),
	}
	if v := r.URL.Query().Get("responsible_function_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			detail(w, http.StatusUnprocessableEntity, "Invalid responsible function id")
			return
		}
		f.ResponsibleFunctionID = &id
	}

	b.mu.Lock()
	b.files[f.ID] = f
	b.contents[f.ID] = data
	b.uploads = append(b.uploads, r.URL.Query())
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, f)
}

func (b *fakeBackend) getFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	f, found := b.files[id]
	b.mu.Unlock()
	if !found {
		detail(w, http.StatusNotFound, "File not found")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (b *fakeBackend) downloadFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	f, found := b.files[id]
	data := b.contents[id]
	b.mu.Unlock()
	if !found {
		detail(w, http.StatusNotFound, "File not found")
		return
	}
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+f.OriginalFilename+`"`)
	_, _ = w.Write(data)
}

func (b *fakeBackend) listFiles(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []File{}
	for _, f := range b.files {
		out = append(out, f)
	}
	writeJSON(w, http.StatusOK, Page[File]{Data: out, Count: len(out)})
}

func (b *fakeBackend) fileURL(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	f, found := b.files[id]
	b.mu.Unlock()
	if !found {
		detail(w, http.StatusNotFound, "File not found")
		return
	}
	expires := 3600
	if v, err := strconv.Atoi(r.URL.Query().Get("expires_in")); err == nil {
		expires = v
	}
	writeJSON(w, http.StatusOK, FileURL{URL: "http://minio:9000/files/" + f.Filename + "?X-Amz-Expires=" + strconv.Itoa(expires), ExpiresIn: expires})
}

func (b *fakeBackend) deleteFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, found := b.files[id]; !found {
		detail(w, http.StatusNotFound, "File not found")
		return
	}
	delete(b.files, id)
	delete(b.contents, id)
	writeJSON(w, http.StatusOK, Message{Message: "File deleted successfully"})
}
