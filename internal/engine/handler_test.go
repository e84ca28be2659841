package engine

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"lims-forms/internal/client"
	"lims-forms/internal/draft"
	"lims-forms/internal/export"
	"lims-forms/internal/form"
	"lims-forms/internal/metadata"
	"lims-forms/internal/section"
)

// fakeBackend stands in for the LIMS REST backend.
type fakeBackend struct {
	mu       sync.Mutex
	fail     bool
	records  map[string]map[string]any
	nextID   int
	lastAuth string
	searched string
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	fb := &fakeBackend{records: map[string]map[string]any{}, nextID: 17}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /pqrs", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		fb.lastAuth = r.Header.Get("Authorization")
		if fb.fail {
			http.Error(w, `{"detail":"database unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		body["id"] = fb.nextID
		fb.records[jsonString(fb.nextID)] = body
		fb.nextID++
		writeJSON(w, 201, body)
	})
	mux.HandleFunc("PATCH /pqrs/{id}", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		body["id"] = r.PathValue("id")
		fb.records[r.PathValue("id")] = body
		writeJSON(w, 200, body)
	})
	mux.HandleFunc("GET /pqrs/{id}", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		rec, ok := fb.records[r.PathValue("id")]
		if !ok {
			http.Error(w, `{"detail":"Not found."}`, http.StatusNotFound)
			return
		}
		writeJSON(w, 200, rec)
	})
	mux.HandleFunc("GET /clients", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.lastAuth = r.Header.Get("Authorization")
		fb.mu.Unlock()
		writeJSON(w, 200, map[string]any{
			"count": 1, "next": nil, "previous": nil,
			"results": []any{map[string]any{"id": 1, "name": "ACME"}},
		})
	})
	mux.HandleFunc("GET /clients/search", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.searched = r.URL.Query().Get("q")
		fb.mu.Unlock()
		writeJSON(w, 200, map[string]any{"count": 0, "results": []any{}})
	})
	mux.HandleFunc("POST /export", func(w http.ResponseWriter, r *http.Request) {
		var p export.Payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("PDF:" + p.FileName))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fb, srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonString(v any) string {
	b, _ := json.Marshal(v)
	return strings.Trim(string(b), `"`)
}

type testEnv struct {
	app      *fiber.App
	backend  *fakeBackend
	drafts   *draft.Drafts
	sessions *form.Manager
}

// users maps the X-Test-User header to the authenticated user.
var users = map[string]*metadata.UserContext{
	"tech":   {ID: "tech", Roles: []string{metadata.RoleTechnician}, Token: "tech-token"},
	"tech2":  {ID: "tech2", Roles: []string{metadata.RoleTechnician}, Token: "tech2-token"},
	"viewer": {ID: "viewer", Roles: []string{metadata.RoleViewer}, Token: "viewer-token"},
	"admin":  {ID: "admin", Roles: []string{metadata.RoleAdmin}, Token: "admin-token"},
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fb, srv := newFakeBackend(t)
	logger := zap.NewNop()
	sessions := form.NewManager(logger)
	drafts := draft.New(draft.NewMemoryStore(), "lims", logger)
	services := client.NewServices(client.New(srv.URL, 5*time.Second))

	h := NewHandler(metadata.NewDefaultRegistry(), sessions, drafts, services, logger)
	app := fiber.New(fiber.Config{ErrorHandler: NewErrorHandler(logger)})
	testAuth := func(c *fiber.Ctx) error {
		u, ok := users[c.Get("X-Test-User")]
		if !ok {
			return UnauthorizedError("Missing auth token")
		}
		c.Locals("user", u)
		return c.Next()
	}
	RegisterRoutes(app, h, NewFileHandler(h, 1<<20), testAuth)
	return &testEnv{app: app, backend: fb, drafts: drafts, sessions: sessions}
}

type apiResponse struct {
	Data  json.RawMessage `json:"data"`
	Meta  map[string]any  `json:"meta"`
	Error *AppError       `json:"error"`
}

func (e *testEnv) call(t *testing.T, method, path, user string, body any) (int, apiResponse) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out apiResponse
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

type openResult struct {
	SessionID string          `json:"session_id"`
	Source    string          `json:"source"`
	ReadOnly  bool            `json:"read_only"`
	Aggregate *form.Aggregate `json:"aggregate"`
}

func (e *testEnv) open(t *testing.T, user string, body any) openResult {
	t.Helper()
	status, resp := e.call(t, "POST", "/api/forms/pqr/sessions", user, body)
	require.Equal(t, 201, status)
	return decode[openResult](t, resp.Data)
}

func (e *testEnv) fillValidPQR(t *testing.T, id string) {
	t.Helper()
	status, _ := e.call(t, "PUT", "/api/sessions/"+id+"/fields", "tech", map[string]any{
		"pqr_number": "PQR-001",
		"company":    "Gulf Labs",
	})
	require.Equal(t, 200, status)
	for _, cell := range []map[string]string{
		{"section": "base_metals", "row_id": "bm1", "accessor_key": "value", "value": "SA-516"},
		{"section": "tensile_test", "row_id": "tt1", "accessor_key": "specimen", "value": "T-1"},
	} {
		status, _ = e.call(t, "PUT", "/api/sessions/"+id+"/sections/"+cell["section"]+"/cells", "tech", cell)
		require.Equal(t, 200, status)
	}
}

func TestListFormsAndTemplate(t *testing.T) {
	env := newTestEnv(t)

	status, resp := env.call(t, "GET", "/api/forms", "tech", nil)
	require.Equal(t, 200, status)
	forms := decode[[]map[string]any](t, resp.Data)
	assert.Len(t, forms, len(metadata.Builtin()))

	status, resp = env.call(t, "GET", "/api/forms/pqr/template?asme_equivalent=true", "tech", nil)
	require.Equal(t, 200, status)
	agg := decode[form.Aggregate](t, resp.Data)
	assert.Len(t, agg.Sections["base_metals"].Columns, 3)
	assert.Len(t, agg.Sections["base_metals"].Data, 10)

	status, resp = env.call(t, "GET", "/api/forms/nope/template", "tech", nil)
	assert.Equal(t, 404, status)
	assert.Equal(t, "UNKNOWN_FORM", resp.Error.Code)

	status, _ = env.call(t, "GET", "/api/forms", "", nil)
	assert.Equal(t, 401, status)
}

func TestSessionEditAndSubmit(t *testing.T) {
	env := newTestEnv(t)
	s := env.open(t, "tech", nil)
	assert.Equal(t, SourceDefaults, s.Source)
	assert.False(t, s.ReadOnly)

	env.fillValidPQR(t, s.SessionID)

	// Every mutation autosaves a draft under the session id.
	d, ok := env.drafts.Load(t.Context(), "pqr", s.SessionID)
	require.True(t, ok)
	assert.Equal(t, "PQR-001", d.Fields["pqr_number"])

	status, resp := env.call(t, "POST", "/api/sessions/"+s.SessionID+"/submit", "tech", nil)
	require.Equal(t, 201, status, string(resp.Data))
	result := decode[map[string]json.RawMessage](t, resp.Data)
	assert.Equal(t, `"17"`, string(result["record_id"]))
	assert.Equal(t, "Bearer tech-token", env.backend.lastAuth)

	saved := env.backend.records["17"]
	require.NotNil(t, saved)
	assert.Equal(t, "pqr", saved["form"])
	assert.Contains(t, saved["sections"], "toughness_test")

	_, ok = env.drafts.Load(t.Context(), "pqr", s.SessionID)
	assert.False(t, ok)

	// A second submit updates the same record.
	status, _ = env.call(t, "POST", "/api/sessions/"+s.SessionID+"/submit", "tech", nil)
	assert.Equal(t, 200, status)
	assert.Len(t, env.backend.records, 1)
}

func TestSubmit_ValidationFailed(t *testing.T) {
	env := newTestEnv(t)
	s := env.open(t, "tech", nil)

	status, resp := env.call(t, "POST", "/api/sessions/"+s.SessionID+"/submit", "tech", nil)
	require.Equal(t, 422, status)
	assert.Equal(t, "VALIDATION_FAILED", resp.Error.Code)
	rules := map[string]bool{}
	for _, d := range resp.Error.Details {
		rules[d.Rule] = true
	}
	assert.True(t, rules["base_metal_spec"])
	assert.True(t, rules["field"])
	assert.Empty(t, env.backend.records)
}

func TestSubmit_BackendFailureLeavesAggregateUnchanged(t *testing.T) {
	env := newTestEnv(t)
	s := env.open(t, "tech", nil)
	env.fillValidPQR(t, s.SessionID)

	_, before := env.call(t, "GET", "/api/sessions/"+s.SessionID, "tech", nil)

	env.backend.fail = true
	status, resp := env.call(t, "POST", "/api/sessions/"+s.SessionID+"/submit", "tech", nil)
	require.Equal(t, 502, status)
	assert.Equal(t, "UPSTREAM_ERROR", resp.Error.Code)

	_, after := env.call(t, "GET", "/api/sessions/"+s.SessionID, "tech", nil)
	assert.JSONEq(t, string(before.Data), string(after.Data))
	assert.Empty(t, decode[form.Aggregate](t, after.Data).RecordID)

	// The draft survives the failed submission.
	_, ok := env.drafts.Load(t.Context(), "pqr", s.SessionID)
	assert.True(t, ok)
}

func TestSectionErrors(t *testing.T) {
	env := newTestEnv(t)
	s := env.open(t, "tech", nil)
	base := "/api/sessions/" + s.SessionID + "/sections/"

	status, resp := env.call(t, "POST", base+"base_metals/rows", "tech", nil)
	assert.Equal(t, 409, status)
	assert.Equal(t, "FIXED_CARDINALITY", resp.Error.Code)

	status, resp = env.call(t, "PUT", base+"base_metals/cells", "tech",
		map[string]string{"row_id": "bm99", "accessor_key": "value", "value": "x"})
	assert.Equal(t, 404, status)
	assert.Equal(t, "ROW_NOT_FOUND", resp.Error.Code)

	status, resp = env.call(t, "PUT", base+"nope/cells", "tech",
		map[string]string{"row_id": "bm1", "accessor_key": "value", "value": "x"})
	assert.Equal(t, 404, status)
	assert.Equal(t, "UNKNOWN_SECTION", resp.Error.Code)

	status, resp = env.call(t, "PUT", "/api/sessions/"+s.SessionID+"/flags/nope", "tech", map[string]bool{"value": true})
	assert.Equal(t, 400, status)
	assert.Equal(t, "INVALID_PAYLOAD", resp.Error.Code)
}

func TestSetFields_UnknownFieldAppliesNothing(t *testing.T) {
	env := newTestEnv(t)
	s := env.open(t, "tech", nil)
	path := "/api/sessions/" + s.SessionID + "/fields"

	status, _ := env.call(t, "PUT", path, "tech", map[string]any{"pqr_number": "PQR-1"})
	require.Equal(t, 200, status)

	status, resp := env.call(t, "PUT", path, "tech", map[string]any{
		"pqr_number":  "PQR-2",
		"zzz_unknown": "x",
		"company":     "Gulf Labs",
	})
	require.Equal(t, 400, status)
	assert.Equal(t, "INVALID_PAYLOAD", resp.Error.Code)

	_, got := env.call(t, "GET", "/api/sessions/"+s.SessionID, "tech", nil)
	fields := decode[form.Aggregate](t, got.Data).Fields
	assert.Equal(t, "PQR-1", fields["pqr_number"])
	assert.Equal(t, "", fields["company"])
}

func TestReplaceSection_FixedSectionRowCount(t *testing.T) {
	env := newTestEnv(t)
	s := env.open(t, "tech", nil)
	path := "/api/sessions/" + s.SessionID + "/sections/base_metals"

	status, _ := env.call(t, "PUT", path+"/cells", "tech",
		map[string]string{"row_id": "bm1", "accessor_key": "value", "value": "SA-516"})
	require.Equal(t, 200, status)
	_, got := env.call(t, "GET", "/api/sessions/"+s.SessionID, "tech", nil)
	before := decode[form.Aggregate](t, got.Data).Sections["base_metals"]

	grown := before.Clone()
	grown.Data = append(grown.Data, section.NewRow("bm11", section.AccessorKeys(grown.Columns)))
	status, resp := env.call(t, "PUT", path, "tech", grown)
	assert.Equal(t, 409, status)
	assert.Equal(t, "FIXED_CARDINALITY", resp.Error.Code)

	shrunk := before.Clone()
	shrunk.Data = shrunk.Data[:1]
	status, resp = env.call(t, "PUT", path, "tech", shrunk)
	assert.Equal(t, 409, status)
	assert.Equal(t, "FIXED_CARDINALITY", resp.Error.Code)

	_, got = env.call(t, "GET", "/api/sessions/"+s.SessionID, "tech", nil)
	assert.Equal(t, before, decode[form.Aggregate](t, got.Data).Sections["base_metals"])

	// Label cells are template text.
	status, resp = env.call(t, "PUT", path+"/cells", "tech",
		map[string]string{"row_id": "bm1", "accessor_key": "label", "value": "Renamed"})
	assert.Equal(t, 409, status)
	assert.Equal(t, "COLUMN_NOT_EDITABLE", resp.Error.Code)
}

func TestReplaceSection_InvalidShapeThenEdit(t *testing.T) {
	env := newTestEnv(t)
	s := env.open(t, "tech", nil)
	path := "/api/sessions/" + s.SessionID + "/sections/tensile_test"

	replaced := section.Section{
		Columns: []section.Column{
			{ID: "ttSpecimen", Header: "Specimen No.", AccessorKey: "specimen", Type: section.ColumnInput},
			{ID: "ttLoad", Header: "Ultimate Total Load (kN)", AccessorKey: "load", Type: section.ColumnNumber},
		},
		Data: []section.Row{{ID: "x1", Cells: map[string]string{"specimen": "T-9"}}},
	}
	status, _ := env.call(t, "PUT", path, "tech", replaced)
	require.Equal(t, 200, status)

	// The replaced rows are what the session edits from now on.
	status, resp := env.call(t, "PUT", path+"/cells", "tech",
		map[string]string{"row_id": "tt1", "accessor_key": "specimen", "value": "T-1"})
	assert.Equal(t, 404, status)
	assert.Equal(t, "ROW_NOT_FOUND", resp.Error.Code)

	status, _ = env.call(t, "PUT", path+"/cells", "tech",
		map[string]string{"row_id": "x1", "accessor_key": "load", "value": "210"})
	require.Equal(t, 200, status)

	_, got := env.call(t, "GET", "/api/sessions/"+s.SessionID, "tech", nil)
	sec := decode[form.Aggregate](t, got.Data).Sections["tensile_test"]
	require.Len(t, sec.Data, 1)
	assert.Equal(t, "x1", sec.Data[0].ID)
	assert.Equal(t, "T-9", sec.Data[0].Cells["specimen"])
	assert.Equal(t, "210", sec.Data[0].Cells["load"])
}

func TestRowsAndFlags(t *testing.T) {
	env := newTestEnv(t)
	s := env.open(t, "tech", nil)
	base := "/api/sessions/" + s.SessionID

	status, resp := env.call(t, "POST", base+"/sections/tensile_test/rows", "tech", map[string]string{"after_row_id": "tt1"})
	require.Equal(t, 200, status)
	row := decode[section.Row](t, resp.Data)
	assert.NotEmpty(t, row.ID)

	status, resp = env.call(t, "DELETE", base+"/sections/tensile_test/rows/tt2", "tech", nil)
	require.Equal(t, 200, status)
	sec := decode[section.Section](t, resp.Data)
	require.Len(t, sec.Data, 2)
	assert.Equal(t, []string{"tt1", row.ID}, []string{sec.Data[0].ID, sec.Data[1].ID})

	status, resp = env.call(t, "PUT", base+"/flags/asme_equivalent", "tech", map[string]bool{"value": true})
	require.Equal(t, 200, status)
	agg := decode[form.Aggregate](t, resp.Data)
	assert.True(t, agg.Flags[metadata.FlagASMEEquivalent])
	assert.Len(t, agg.Sections["filler_metals"].Columns, 3)
}

func TestReadOnlySessions(t *testing.T) {
	env := newTestEnv(t)
	s := env.open(t, "viewer", map[string]any{"read_only": false})
	assert.True(t, s.ReadOnly)

	status, resp := env.call(t, "PUT", "/api/sessions/"+s.SessionID+"/sections/base_metals/cells", "viewer",
		map[string]string{"row_id": "bm1", "accessor_key": "value", "value": "x"})
	assert.Equal(t, 409, status)
	assert.Equal(t, "READ_ONLY", resp.Error.Code)

	status, _ = env.call(t, "PUT", "/api/sessions/"+s.SessionID+"/mode", "viewer", map[string]bool{"read_only": false})
	assert.Equal(t, 403, status)

	// A technician may switch a view session into edit mode.
	ts := env.open(t, "tech", map[string]any{"read_only": true})
	status, _ = env.call(t, "PUT", "/api/sessions/"+ts.SessionID+"/mode", "tech", map[string]bool{"read_only": false})
	require.Equal(t, 200, status)
	status, _ = env.call(t, "PUT", "/api/sessions/"+ts.SessionID+"/sections/base_metals/cells", "tech",
		map[string]string{"row_id": "bm1", "accessor_key": "value", "value": "x"})
	assert.Equal(t, 200, status)
}

func TestSessionOwnership(t *testing.T) {
	env := newTestEnv(t)
	s := env.open(t, "tech", nil)

	status, resp := env.call(t, "GET", "/api/sessions/"+s.SessionID, "tech2", nil)
	assert.Equal(t, 403, status)
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)

	status, _ = env.call(t, "GET", "/api/sessions/"+s.SessionID, "admin", nil)
	assert.Equal(t, 200, status)

	status, _ = env.call(t, "DELETE", "/api/sessions/"+s.SessionID, "tech", nil)
	assert.Equal(t, 200, status)
	status, resp = env.call(t, "GET", "/api/sessions/"+s.SessionID, "tech", nil)
	assert.Equal(t, 404, status)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestOpenExistingRecord(t *testing.T) {
	env := newTestEnv(t)
	def := metadata.NewDefaultRegistry().GetForm(metadata.FormPQR)

	stored := form.NewAggregator(def, nil, zap.NewNop())
	require.NoError(t, stored.SetField("pqr_number", "PQR-B"))
	rec := map[string]any{}
	b, _ := json.Marshal(stored.Serialize())
	require.NoError(t, json.Unmarshal(b, &rec))
	rec["id"] = 5
	env.backend.records["5"] = rec

	s := env.open(t, "tech", map[string]any{"record_id": "5"})
	assert.Equal(t, SourceBackend, s.Source)
	assert.Equal(t, "5", s.Aggregate.RecordID)
	assert.Equal(t, "PQR-B", s.Aggregate.Fields["pqr_number"])

	// Edits create a draft under the record id, which wins on the next open.
	status, _ := env.call(t, "PUT", "/api/sessions/"+s.SessionID+"/fields", "tech", map[string]any{"pqr_number": "PQR-C"})
	require.Equal(t, 200, status)
	again := env.open(t, "tech", map[string]any{"record_id": "5"})
	assert.Equal(t, SourceDraft, again.Source)
	assert.Equal(t, "PQR-C", again.Aggregate.Fields["pqr_number"])

	status, resp := env.call(t, "POST", "/api/forms/pqr/sessions", "tech", map[string]any{"record_id": "404"})
	assert.Equal(t, 404, status)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestNewRecordDraftLifecycle(t *testing.T) {
	env := newTestEnv(t)

	t.Run("close discards the draft of an unsaved record", func(t *testing.T) {
		s := env.open(t, "tech", nil)
		status, _ := env.call(t, "PUT", "/api/sessions/"+s.SessionID+"/fields", "tech", map[string]any{"pqr_number": "PQR-X"})
		require.Equal(t, 200, status)
		_, ok := env.drafts.Load(t.Context(), "pqr", s.SessionID)
		require.True(t, ok)

		status, _ = env.call(t, "DELETE", "/api/sessions/"+s.SessionID, "tech", nil)
		require.Equal(t, 200, status)
		_, ok = env.drafts.Load(t.Context(), "pqr", s.SessionID)
		assert.False(t, ok)
	})

	t.Run("resumed draft stays a new record", func(t *testing.T) {
		// A draft left behind by a session of an earlier server process.
		def := metadata.NewDefaultRegistry().GetForm(metadata.FormPQR)
		orphan := form.NewAggregator(def, nil, zap.NewNop())
		require.NoError(t, orphan.SetField("pqr_number", "PQR-001"))
		require.NoError(t, env.drafts.Save(t.Context(), "old-session", orphan.Serialize()))

		s := env.open(t, "tech", map[string]any{"record_id": "old-session"})
		assert.Equal(t, SourceDraft, s.Source)
		assert.Empty(t, s.Aggregate.RecordID)
		assert.Equal(t, "PQR-001", s.Aggregate.Fields["pqr_number"])

		env.fillValidPQR(t, s.SessionID)
		d, ok := env.drafts.Load(t.Context(), "pqr", "old-session")
		require.True(t, ok)
		assert.Equal(t, "Gulf Labs", d.Fields["company"])
		_, ok = env.drafts.Load(t.Context(), "pqr", s.SessionID)
		assert.False(t, ok)

		status, resp := env.call(t, "POST", "/api/sessions/"+s.SessionID+"/submit", "tech", nil)
		require.Equal(t, 201, status, string(resp.Data))
		var recordID string
		require.NoError(t, json.Unmarshal(decode[map[string]json.RawMessage](t, resp.Data)["record_id"], &recordID))
		assert.NotEqual(t, "old-session", recordID)
		assert.Contains(t, env.backend.records, recordID)
		assert.NotContains(t, env.backend.records, "old-session")

		_, ok = env.drafts.Load(t.Context(), "pqr", "old-session")
		assert.False(t, ok)
	})

	t.Run("expiry discards the draft of an unsaved record", func(t *testing.T) {
		s := env.open(t, "tech", nil)
		status, _ := env.call(t, "PUT", "/api/sessions/"+s.SessionID+"/fields", "tech", map[string]any{"pqr_number": "PQR-Y"})
		require.Equal(t, 200, status)

		time.Sleep(time.Millisecond)
		NewSessionSweeper(env.sessions, time.Nanosecond, time.Hour, nil).Sweep()
		_, ok := env.drafts.Load(t.Context(), "pqr", s.SessionID)
		assert.False(t, ok)
	})
}

func TestExportImport(t *testing.T) {
	env := newTestEnv(t)
	s := env.open(t, "tech", nil)
	path := "/api/sessions/" + s.SessionID + "/sections/tensile_test"

	req := httptest.NewRequest("GET", path+"/export", nil)
	req.Header.Set("X-Test-User", "tech")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, export.ContentTypeXLSX, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "pqr-tensile_test.xlsx")

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	assert.Equal(t, "Specimen No.", rows[0][0])
	require.NoError(t, f.Close())

	// Import three specimens into the two-row default.
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "tensile.xlsx")
	require.NoError(t, err)
	require.NoError(t, export.Write(fw, export.Payload{
		Columns: []export.Column{{Key: "specimen", Label: "Specimen No."}, {Key: "load", Label: "Ultimate Total Load (kN)"}},
		Data: []map[string]any{
			{"specimen": "T-1", "load": "210"},
			{"specimen": "T-2", "load": "212"},
			{"specimen": "T-3", "load": "209"},
		},
	}))
	require.NoError(t, mw.Close())

	req = httptest.NewRequest("POST", path+"/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Test-User", "tech")
	resp, err = env.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	_, got := env.call(t, "GET", "/api/sessions/"+s.SessionID, "tech", nil)
	sec := decode[form.Aggregate](t, got.Data).Sections["tensile_test"]
	require.Len(t, sec.Data, 3)
	assert.Equal(t, "tt1", sec.Data[0].ID)
	assert.Equal(t, "T-3", sec.Data[2].Cells["specimen"])
	assert.Equal(t, "212", sec.Data[1].Cells["load"])
	assert.Equal(t, "", sec.Data[0].Cells["width"])
}

func TestImport_FixedSectionExtraRows(t *testing.T) {
	env := newTestEnv(t)
	s := env.open(t, "tech", nil)
	path := "/api/sessions/" + s.SessionID + "/sections/base_metals"

	_, got := env.call(t, "GET", "/api/sessions/"+s.SessionID, "tech", nil)
	before := decode[form.Aggregate](t, got.Data).Sections["base_metals"]

	data := make([]map[string]any, 0, len(before.Data)+1)
	for _, row := range before.Data {
		data = append(data, map[string]any{"label": row.Cells["label"], "value": "v"})
	}
	data = append(data, map[string]any{"label": "Extra", "value": "v"})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "base_metals.xlsx")
	require.NoError(t, err)
	require.NoError(t, export.Write(fw, export.Payload{
		Columns: []export.Column{{Key: "label", Label: "Parameter"}, {Key: "value", Label: "Details"}},
		Data:    data,
	}))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", path+"/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Test-User", "tech")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 409, resp.StatusCode)
	var out apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Error)
	assert.Equal(t, "FIXED_CARDINALITY", out.Error.Code)

	_, got = env.call(t, "GET", "/api/sessions/"+s.SessionID, "tech", nil)
	assert.Equal(t, before, decode[form.Aggregate](t, got.Data).Sections["base_metals"])
}

func TestRemoteExport(t *testing.T) {
	env := newTestEnv(t)
	s := env.open(t, "tech", nil)

	req := httptest.NewRequest("GET", "/api/sessions/"+s.SessionID+"/sections/joints/export?remote=true&file_name=joints", nil)
	req.Header.Set("X-Test-User", "tech")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	data, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "PDF:joints", string(data))
}

func TestResourceProxy(t *testing.T) {
	env := newTestEnv(t)

	status, resp := env.call(t, "GET", "/api/resources/clients?page=1", "tech", nil)
	require.Equal(t, 200, status)
	list := decode[[]map[string]any](t, resp.Data)
	require.Len(t, list, 1)
	assert.Equal(t, "ACME", list[0]["name"])
	assert.EqualValues(t, 1, resp.Meta["count"])
	assert.Equal(t, "Bearer tech-token", env.backend.lastAuth)

	status, _ = env.call(t, "GET", "/api/resources/clients?q=acme", "tech", nil)
	require.Equal(t, 200, status)
	assert.Equal(t, "acme", env.backend.searched)

	status, resp = env.call(t, "GET", "/api/resources/widgets", "tech", nil)
	assert.Equal(t, 404, status)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestSessionSweeper(t *testing.T) {
	env := newTestEnv(t)
	s := env.open(t, "tech", nil)

	sweeper := NewSessionSweeper(env.sessions, time.Nanosecond, time.Hour, nil)
	time.Sleep(time.Millisecond)
	assert.Equal(t, 1, sweeper.Sweep())

	status, _ := env.call(t, "GET", "/api/sessions/"+s.SessionID, "tech", nil)
	assert.Equal(t, 404, status)

	assert.Equal(t, 0, NewSessionSweeper(env.sessions, 0, 0, nil).Sweep())
}
