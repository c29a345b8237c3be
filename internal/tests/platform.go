// Package tests provides an in-memory fake of the platform's REST API for tests.
package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for upload dimension sniffing
	_ "image/png"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/dataloop-tools/dataloop-go/internal/https"
	intlogger "github.com/dataloop-tools/dataloop-go/internal/logger"
)

// Platform is an in-memory fake of the annotation platform. Documents are
// kept as decoded JSON so filters can be evaluated generically.
type Platform struct {
	Server *httptest.Server

	Email    string
	Password string

	mu          sync.Mutex
	token       string
	logins      int
	logouts     int
	seq         int
	projects    []doc
	datasets    []doc
	items       []doc
	labels      map[string][]doc
	annotations map[string][]doc
	calls       map[string]int
	failures    map[string]int
}

type doc = map[string]any

// NewPlatform starts a fake platform that is shut down when the test ends.
func NewPlatform(t *testing.T) *Platform {
	t.Helper()

	p := &Platform{
		Email:       "bot@example.com",
		Password:    "secret",
		labels:      map[string][]doc{},
		annotations: map[string][]doc{},
		calls:       map[string]int{},
		failures:    map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", p.handleLogin)
	mux.HandleFunc("POST /auth/logout", p.authed("logout", p.handleLogout))
	mux.HandleFunc("GET /projects", p.authed("projects.list", p.handleListProjects))
	mux.HandleFunc("GET /projects/{id}", p.authed("projects.get", p.handleGetProject))
	mux.HandleFunc("GET /projects/{id}/datasets", p.authed("datasets.list", p.handleListDatasets))
	mux.HandleFunc("POST /projects/{id}/datasets", p.authed("datasets.create", p.handleCreateDataset))
	mux.HandleFunc("GET /datasets/{id}", p.authed("datasets.get", p.handleGetDataset))
	mux.HandleFunc("POST /datasets/{id}/labels", p.authed("datasets.labels", p.handleAddLabels))
	mux.HandleFunc("POST /datasets/{id}/items", p.authed("items.upload", p.handleUpload))
	mux.HandleFunc("POST /datasets/{id}/query", p.authed("items.query", p.handleQuery))
	mux.HandleFunc("POST /datasets/{id}/items/bulk-update", p.authed("items.update", p.handleBulkUpdate))
	mux.HandleFunc("GET /items/{id}", p.authed("items.get", p.handleGetItem))
	mux.HandleFunc("POST /items/{id}/annotations", p.authed("annotations.upload", p.handleUploadAnnotations))
	mux.HandleFunc("GET /items/{id}/annotations", p.authed("annotations.list", p.handleListAnnotations))

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

// URL is the API base URL of the fake.
func (p *Platform) URL() string {
	return p.Server.URL
}

// IssueToken starts a session without going through login and returns its token.
func (p *Platform) IssueToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = fmt.Sprintf("issued-token-%d", rand.Int63())
	return p.token
}

// NewClient returns an API client already authenticated against the fake.
func (p *Platform) NewClient(t *testing.T) *https.Client {
	t.Helper()
	return https.NewClient(p.IssueToken(), p.URL(), intlogger.NewFailTestLogger(t))
}

// Token returns the currently valid access token, or "" when logged out.
func (p *Platform) Token() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

// Logins returns the number of successful logins.
func (p *Platform) Logins() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logins
}

// Logouts returns the number of logouts.
func (p *Platform) Logouts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logouts
}

// Calls returns how many authenticated requests hit the named route, e.g.
// "annotations.upload".
func (p *Platform) Calls(route string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[route]
}

// FailRoute makes every following request to route answer with status.
func (p *Platform) FailRoute(route string, status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[route] = status
}

// AddProject seeds a project and returns its ID.
func (p *Platform) AddProject(name string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.newID("project")
	p.projects = append(p.projects, doc{"id": id, "name": name, "org": "org-test"})
	return id
}

// AddDataset seeds a dataset and returns its ID.
func (p *Platform) AddDataset(projectID, name string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createDataset(projectID, name)["id"].(string)
}

// AddItem seeds an image item with the given dimensions and returns its ID.
func (p *Platform) AddItem(datasetID, name string, width, height int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	system := doc{"mimetype": "image/png", "originalname": name}
	if width >= 0 && height >= 0 {
		system["width"] = float64(width)
		system["height"] = float64(height)
	}
	return p.createItem(datasetID, "/", name, system)["id"].(string)
}

// Datasets returns copies of the datasets of a project.
func (p *Platform) Datasets(projectID string) []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []map[string]any
	for _, d := range p.datasets {
		if d["projectId"] == projectID {
			out = append(out, clone(d))
		}
	}
	return out
}

// Item returns a copy of an item document, or nil.
func (p *Platform) Item(id string) map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	if it := p.findItem(id); it != nil {
		return clone(it)
	}
	return nil
}

// ItemIDs returns the IDs of a dataset's items in creation order.
func (p *Platform) ItemIDs(datasetID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ids []string
	for _, it := range p.items {
		if it["datasetId"] == datasetID {
			ids = append(ids, it["id"].(string))
		}
	}
	return ids
}

// Annotations returns copies of an item's annotations.
func (p *Platform) Annotations(itemID string) []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]map[string]any, 0, len(p.annotations[itemID]))
	for _, a := range p.annotations[itemID] {
		out = append(out, clone(a))
	}
	return out
}

// Labels returns copies of a dataset's labels.
func (p *Platform) Labels(datasetID string) []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []map[string]any
	for _, l := range p.labels[datasetID] {
		out = append(out, clone(l))
	}
	return out
}

func (p *Platform) authed(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		valid := p.token != "" && r.Header.Get("Authorization") == "Bearer "+p.token
		if valid {
			p.calls[route]++
		}
		status := p.failures[route]
		p.mu.Unlock()

		if !valid {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if status != 0 {
			http.Error(w, "injected failure", status)
			return
		}
		h(w, r)
	}
}

func (p *Platform) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Username != p.Email || req.Password != p.Password {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	p.mu.Lock()
	p.logins++
	p.token = fmt.Sprintf("fake-token-%d-%d", p.logins, rand.Int63())
	token := p.token
	p.mu.Unlock()

	writeJSON(w, http.StatusOK, doc{"access_token": token, "expires_in": 3600})
}

func (p *Platform) handleLogout(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	p.logouts++
	p.token = ""
	p.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (p *Platform) handleListProjects(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []doc{}
	for _, pr := range p.projects {
		if name == "" || strings.Contains(pr["name"].(string), name) {
			out = append(out, pr)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (p *Platform) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pr := range p.projects {
		if pr["id"] == r.PathValue("id") {
			writeJSON(w, http.StatusOK, pr)
			return
		}
	}
	http.Error(w, "project not found", http.StatusNotFound)
}

func (p *Platform) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	name := r.URL.Query().Get("name")
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.findProject(projectID) == nil {
		http.Error(w, "project not found", http.StatusNotFound)
		return
	}
	out := []doc{}
	for _, d := range p.datasets {
		if d["projectId"] == projectID && (name == "" || d["name"] == name) {
			out = append(out, d)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (p *Platform) handleCreateDataset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	projectID := r.PathValue("id")

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.findProject(projectID) == nil {
		http.Error(w, "project not found", http.StatusNotFound)
		return
	}
	for _, d := range p.datasets {
		if d["projectId"] == projectID && d["name"] == req.Name {
			http.Error(w, "dataset already exists", http.StatusConflict)
			return
		}
	}
	writeJSON(w, http.StatusOK, p.createDataset(projectID, req.Name))
}

func (p *Platform) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.findDataset(r.PathValue("id"))
	if d == nil {
		http.Error(w, "dataset not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (p *Platform) handleAddLabels(w http.ResponseWriter, r *http.Request) {
	var labels []doc
	if err := json.NewDecoder(r.Body).Decode(&labels); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := r.PathValue("id")

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.findDataset(id) == nil {
		http.Error(w, "dataset not found", http.StatusNotFound)
		return
	}
	for _, l := range labels {
		replaced := false
		for i, existing := range p.labels[id] {
			if existing["tag"] == l["tag"] {
				p.labels[id][i] = l
				replaced = true
			}
		}
		if !replaced {
			p.labels[id] = append(p.labels[id], l)
		}
	}
	writeJSON(w, http.StatusOK, p.labels[id])
}

func (p *Platform) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	system := doc{"originalname": hdr.Filename, "size": float64(len(data)), "mimetype": http.DetectContentType(data)}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		system["width"] = float64(cfg.Width)
		system["height"] = float64(cfg.Height)
	}

	dir := r.FormValue("path")
	if dir == "" {
		dir = "/"
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	datasetID := r.PathValue("id")
	if p.findDataset(datasetID) == nil {
		http.Error(w, "dataset not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p.createItem(datasetID, dir, hdr.Filename, system))
}

type query struct {
	Resource string `json:"resource"`
	Filter   doc    `json:"filter"`
	Join     *struct {
		Filter doc `json:"filter"`
	} `json:"join"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

func (p *Platform) handleQuery(w http.ResponseWriter, r *http.Request) {
	var q query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if q.PageSize <= 0 {
		q.PageSize = 1000
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	matched, err := p.match(r.PathValue("id"), q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := q.Page * q.PageSize
	end := start + q.PageSize
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}
	pages := (len(matched) + q.PageSize - 1) / q.PageSize
	writeJSON(w, http.StatusOK, doc{
		"totalItemsCount": len(matched),
		"totalPagesCount": pages,
		"hasNextPage":     end < len(matched),
		"items":           matched[start:end],
	})
}

func (p *Platform) handleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query        query `json:"query"`
		UpdateValues doc   `json:"updateValues"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	matched, err := p.match(r.PathValue("id"), req.Query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, m := range matched {
		it := p.findItem(m["id"].(string))
		md, _ := it["metadata"].(doc)
		merge(md, req.UpdateValues)
	}
	writeJSON(w, http.StatusOK, doc{"updated": len(matched)})
}

func (p *Platform) handleGetItem(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	it := p.findItem(r.PathValue("id"))
	if it == nil {
		http.Error(w, "item not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (p *Platform) handleUploadAnnotations(w http.ResponseWriter, r *http.Request) {
	var in []doc
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	itemID := r.PathValue("id")
	it := p.findItem(itemID)
	if it == nil {
		http.Error(w, "item not found", http.StatusNotFound)
		return
	}
	out := []doc{}
	for _, a := range in {
		if a["type"] == nil || a["label"] == nil {
			http.Error(w, "annotation type and label are required", http.StatusBadRequest)
			return
		}
		a["id"] = p.newID("annotation")
		a["itemId"] = itemID
		a["datasetId"] = it["datasetId"]
		p.annotations[itemID] = append(p.annotations[itemID], a)
		out = append(out, a)
	}
	if len(p.annotations[itemID]) > 0 {
		it["annotated"] = true
	}
	writeJSON(w, http.StatusOK, out)
}

func (p *Platform) handleListAnnotations(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	itemID := r.PathValue("id")
	if p.findItem(itemID) == nil {
		http.Error(w, "item not found", http.StatusNotFound)
		return
	}
	out := p.annotations[itemID]
	if out == nil {
		out = []doc{}
	}
	writeJSON(w, http.StatusOK, out)
}

// match must be called with p.mu held.
func (p *Platform) match(datasetID string, q query) ([]doc, error) {
	if p.findDataset(datasetID) == nil {
		return nil, fmt.Errorf("dataset %s not found", datasetID)
	}
	var out []doc
	for _, it := range p.items {
		if it["datasetId"] != datasetID {
			continue
		}
		ok, err := evaluate(q.Filter, it)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if q.Join != nil {
			joined := false
			for _, a := range p.annotations[it["id"].(string)] {
				ok, err := evaluate(q.Join.Filter, a)
				if err != nil {
					return nil, err
				}
				if ok {
					joined = true
					break
				}
			}
			if !joined {
				continue
			}
		}
		out = append(out, it)
	}
	if out == nil {
		out = []doc{}
	}
	return out, nil
}

func (p *Platform) newID(kind string) string {
	p.seq++
	return fmt.Sprintf("%s-%04d", kind, p.seq)
}

func (p *Platform) createDataset(projectID, name string) doc {
	d := doc{"id": p.newID("dataset"), "name": name, "projectId": projectID}
	p.datasets = append(p.datasets, d)
	return d
}

func (p *Platform) createItem(datasetID, dir, name string, system doc) doc {
	it := doc{
		"id":        p.newID("item"),
		"datasetId": datasetID,
		"name":      name,
		"filename":  path.Join(dir, name),
		"dir":       dir,
		"type":      "file",
		"hidden":    false,
		"annotated": false,
		"metadata":  doc{"system": system, "user": doc{}},
	}
	p.items = append(p.items, it)
	return it
}

func (p *Platform) findProject(id string) doc {
	for _, pr := range p.projects {
		if pr["id"] == id {
			return pr
		}
	}
	return nil
}

func (p *Platform) findDataset(id string) doc {
	for _, d := range p.datasets {
		if d["id"] == id {
			return d
		}
	}
	return nil
}

func (p *Platform) findItem(id string) doc {
	for _, it := range p.items {
		if it["id"] == id {
			return it
		}
	}
	return nil
}

// evaluate applies a {"$and": [{field: cond}, ...]} filter to a document.
func evaluate(filter doc, d doc) (bool, error) {
	if len(filter) == 0 {
		return true, nil
	}
	and, ok := filter["$and"].([]any)
	if !ok {
		return false, fmt.Errorf("filter must be a $and list")
	}
	for _, c := range and {
		clause, ok := c.(map[string]any)
		if !ok {
			return false, fmt.Errorf("invalid clause %v", c)
		}
		for field, cond := range clause {
			ok, err := compare(lookup(d, field), cond)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

func compare(actual, cond any) (bool, error) {
	m, isOp := cond.(map[string]any)
	if !isOp || len(m) != 1 {
		return reflect.DeepEqual(actual, cond), nil
	}
	var op string
	var want any
	for k, v := range m {
		op, want = k, v
	}
	if !strings.HasPrefix(op, "$") {
		return reflect.DeepEqual(actual, cond), nil
	}

	switch op {
	case "$ne":
		return !reflect.DeepEqual(actual, want), nil
	case "$in", "$nin":
		list, ok := want.([]any)
		if !ok {
			return false, fmt.Errorf("%s expects a list", op)
		}
		found := false
		for _, v := range list {
			if reflect.DeepEqual(actual, v) {
				found = true
				break
			}
		}
		return found == (op == "$in"), nil
	case "$gt", "$lt":
		a, aok := actual.(float64)
		b, bok := want.(float64)
		if !aok || !bok {
			return false, nil
		}
		if op == "$gt" {
			return a > b, nil
		}
		return a < b, nil
	case "$exists":
		return (actual != nil) == (want == true), nil
	case "$glob":
		s, ok := actual.(string)
		pattern, pok := want.(string)
		if !ok || !pok {
			return false, nil
		}
		return path.Match(pattern, s)
	default:
		return false, fmt.Errorf("unsupported operator %s", op)
	}
}

func lookup(d doc, field string) any {
	var cur any = d
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func merge(dst, src doc) {
	for k, v := range src {
		if sv, ok := v.(map[string]any); ok {
			dv, ok := dst[k].(map[string]any)
			if !ok {
				dv = doc{}
				dst[k] = dv
			}
			merge(dv, sv)
			continue
		}
		dst[k] = v
	}
}

func clone(d doc) doc {
	data, _ := json.Marshal(d)
	var out doc
	_ = json.Unmarshal(data, &out)
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
