package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/irisdrone/echallan/internal/citation"
	"github.com/irisdrone/echallan/internal/database/dbtest"
	"github.com/irisdrone/echallan/internal/ingest"
	"github.com/irisdrone/echallan/internal/logging"
	"github.com/irisdrone/echallan/internal/metrics"
	"github.com/irisdrone/echallan/internal/models"
	"github.com/irisdrone/echallan/internal/notify"
	"github.com/irisdrone/echallan/internal/ownership"
	"github.com/irisdrone/echallan/internal/review"
	"github.com/irisdrone/echallan/internal/rules"
	"github.com/irisdrone/echallan/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	store  *store.Store
	router *gin.Engine
	auth   *Auth
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := store.New(dbtest.New(t))
	ctx := context.Background()
	require.NoError(t, s.UpsertOwner(ctx, &models.Owner{OwnerID: "OWN001", Name: "Aadita Nag", Phone: "+919876543210"}))
	require.NoError(t, s.UpsertVehicle(ctx, &models.Vehicle{VehicleNo: "MH01AB1234", OwnerID: "OWN001"}))
	require.NoError(t, s.UpsertRule(ctx, &models.Rule{
		RuleID: "no_helmet_riding", ViolationClass: "NoHelmet", MinConfidence: 0.45,
		Penalty: decimal.NewFromInt(500), Points: 2, Active: true,
	}))
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	require.NoError(t, s.UpsertUser(ctx, &models.User{Username: "admin", PasswordHash: hash, Role: models.RoleAdmin}))

	log := logging.Discard()
	m := metrics.New()
	coord := ingest.NewCoordinator(ingest.Deps{
		Logs:     s,
		Matcher:  rules.NewMatcher(rules.NewCatalog(s, nil, log), false),
		Resolver: ownership.NewResolver(s),
		Issuer:   citation.NewIssuer(s),
		Notifier: notify.NewDispatcher(notify.MockChannel{}, s, notify.Options{}, log, m),
		Reviews:  review.NewQueue(s),
		Log:      log,
		Metrics:  m,
	})

	auth := NewAuth("test-secret", time.Hour)
	h := New(Deps{Store: s, Processor: coord, Auth: auth, Metrics: m, Log: log})
	return &testServer{store: s, router: NewRouter(h, false), auth: auth}
}

func (ts *testServer) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) login(t *testing.T) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/auth/login", `{"username":"admin","password":"s3cret"}`, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

const detectBody = `{"source":"camera_1","timestamp":"2025-10-28T18:00:00Z","detection":{"class":"NoHelmet","confidence":0.6},"vehicle_no":"MH01AB1234","image_path":"/data/frame_001.jpg"}`

func TestPostDetect(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/detect", detectBody, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "challan_created", resp["status"])
	assert.Regexp(t, `^CH20251028-`, resp["challan_no"])
	_, hasDup := resp["duplicate"]
	assert.False(t, hasDup)

	w = ts.do(t, http.MethodPost, "/api/detect", detectBody, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["duplicate"])

	w = ts.do(t, http.MethodPost, "/api/detect", `{"source":"camera_1","detection":{"class":"Helmet","confidence":0.9}}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode(t, w)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "no rule triggered", resp["message"])

	w = ts.do(t, http.MethodPost, "/api/detect", `{"source":"camera_1","detection":{"class":"NoHelmet","confidence":0.9}}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode(t, w)
	assert.Equal(t, "manual_review", resp["status"])
	assert.Equal(t, "owner not found; logged for review", resp["message"])
}

func TestPostDetectRejectsOversizedBody(t *testing.T) {
	ts := newTestServer(t)

	// Valid JSON up to the limit, so a truncated read would still decode
	pad := strings.Repeat(" ", maxDetectBody)
	body := `{"source":"camera_1","timestamp":"2025-10-28T18:00:00Z","detection":{"class":"NoHelmet","confidence":0.6},"vehicle_no":"MH01AB1234"}` + pad
	w := ts.do(t, http.MethodPost, "/api/detect", body, "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "request body too large", decode(t, w)["error"])

	var n int64
	require.NoError(t, ts.store.DB().Model(&models.ViolationLog{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestPostDetectRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)

	for _, body := range []string{`{not json`, `{"timestamp":"28/10/2025"}`, `[]`} {
		w := ts.do(t, http.MethodPost, "/api/detect", body, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	var n int64
	require.NoError(t, ts.store.DB().Model(&models.ViolationLog{}).Count(&n).Error)
	assert.Zero(t, n)
}

type failingProcessor struct{}

func (failingProcessor) Process(context.Context, *ingest.Event) (*ingest.Response, error) {
	return nil, errors.New("database is down")
}

func TestPostDetectPersistenceFailure(t *testing.T) {
	h := New(Deps{Processor: failingProcessor{}, Auth: NewAuth("x", 0), Log: logging.Discard()})
	router := NewRouter(h, false)

	req := httptest.NewRequest(http.MethodPost, "/api/detect", bytes.NewReader([]byte(detectBody)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/auth/login", `{"username":"admin","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = ts.do(t, http.MethodPost, "/api/auth/login", `{"username":"nobody","password":"s3cret"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = ts.do(t, http.MethodPost, "/api/auth/login", `{"username":"admin"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	token := ts.login(t)
	assert.NotContains(t, token, "s3cret")
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/challans", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = ts.do(t, http.MethodGet, "/api/challans", "", "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other := NewAuth("another-secret", time.Hour)
	forged, err := other.Token(&models.User{Username: "admin", Role: models.RoleAdmin})
	require.NoError(t, err)
	w = ts.do(t, http.MethodGet, "/api/challans", "", forged)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired := NewAuth("test-secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Token(&models.User{Username: "admin", Role: models.RoleAdmin})
	require.NoError(t, err)
	w = ts.do(t, http.MethodGet, "/api/challans", "", old)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChallanLifecycle(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)

	w := ts.do(t, http.MethodPost, "/api/detect", detectBody, "")
	require.Equal(t, http.StatusOK, w.Code)
	challanNo := decode(t, w)["challan_no"].(string)

	w = ts.do(t, http.MethodGet, "/api/challans?vehicle_no=mh01ab1234&status=issued", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode(t, w)
	assert.Equal(t, float64(1), list["total"])
	assert.Equal(t, float64(50), list["limit"])

	w = ts.do(t, http.MethodGet, "/api/challans/"+challanNo, "", token)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)
	assert.Equal(t, float64(500), got["total_penalty"])
	assert.Equal(t, true, got["notified"])
	assert.Len(t, got["notification_log"], 1)

	w = ts.do(t, http.MethodGet, "/api/challans/CH20000101-000000000000", "", token)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPatch, "/api/challans/"+challanNo+"/void", "", token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPatch, "/api/challans/"+challanNo+"/pay", `{"note":"counter 3"}`, token)
	require.Equal(t, http.StatusOK, w.Code)
	paid := decode(t, w)
	assert.Equal(t, "paid", paid["status"])
	assert.Equal(t, "admin", paid["closed_by"])

	w = ts.do(t, http.MethodPatch, "/api/challans/"+challanNo+"/void", `{"note":"wrong plate"}`, token)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPatch, "/api/challans/CH20000101-000000000000/pay", "", token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBrowseEndpoints(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)

	ts.do(t, http.MethodPost, "/api/detect", detectBody, "")
	ts.do(t, http.MethodPost, "/api/detect", `{"source":"camera_2","timestamp":"2025-10-28T18:05:00Z","detection":{"class":"NoHelmet","confidence":0.9}}`, "")

	w := ts.do(t, http.MethodGet, "/api/reviews", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["total"])

	w = ts.do(t, http.MethodGet, "/api/violations?processed=true&limit=1", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	logs := decode(t, w)
	assert.Equal(t, float64(2), logs["total"])
	assert.Len(t, logs["violations"], 1)

	w = ts.do(t, http.MethodGet, "/api/violations?source=camera_2", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["total"])

	w = ts.do(t, http.MethodGet, "/api/rules", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["total"])

	w = ts.do(t, http.MethodGet, "/api/stats", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	pipeline := decode(t, w)["pipeline"].(map[string]interface{})
	assert.Equal(t, float64(2), pipeline["events"])
	assert.Equal(t, float64(1), pipeline["citations"])
	assert.Equal(t, float64(1), pipeline["pendingReviews"])
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])

	ts.do(t, http.MethodPost, "/api/detect", detectBody, "")
	w = ts.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "echallan_")
}
