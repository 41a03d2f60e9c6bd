package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"judgegate/internal/common/http/middleware"
	"judgegate/internal/run/admission"
	"judgegate/internal/run/controller"
	"judgegate/internal/run/disclosure"
	"judgegate/internal/run/model"
	"judgegate/internal/run/service"
	"judgegate/internal/testutil"
	appErr "judgegate/pkg/errors"
	"judgegate/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const secret = "controller-test-secret"

type fakeRunService struct {
	created   service.CreateInput
	viewer    model.Identity
	guid      string
	debug     bool
	showDiff  bool
	listInput service.ListInput
	err       error
}

func (f *fakeRunService) Create(ctx context.Context, in service.CreateInput) (*admission.Result, error) {
	f.created = in
	if f.err != nil {
		return nil, f.err
	}
	return &admission.Result{
		GUID:                    "abc",
		SubmitDelay:             3,
		NextSubmissionTimestamp: time.Unix(1700000060, 0),
	}, nil
}

func (f *fakeRunService) Status(ctx context.Context, viewer model.Identity, guid string) (*disclosure.StatusView, error) {
	f.viewer, f.guid = viewer, guid
	if f.err != nil {
		return nil, f.err
	}
	return &disclosure.StatusView{GUID: guid, Score: 0.1235}, nil
}

func (f *fakeRunService) Details(ctx context.Context, viewer model.Identity, guid string) (*disclosure.DetailsView, error) {
	f.viewer, f.guid = viewer, guid
	return &disclosure.DetailsView{GUID: guid}, f.err
}

func (f *fakeRunService) Source(ctx context.Context, viewer model.Identity, guid string) (*disclosure.SourceView, error) {
	f.viewer, f.guid = viewer, guid
	return &disclosure.SourceView{Source: "print(1)"}, f.err
}

func (f *fakeRunService) Download(ctx context.Context, viewer model.Identity, guid string, showDiff bool) (*disclosure.Download, error) {
	f.viewer, f.guid, f.showDiff = viewer, guid, showDiff
	if f.err != nil {
		return nil, f.err
	}
	return &disclosure.Download{
		Filename:    guid + ".zip",
		ContentType: "application/zip",
		Body:        io.NopCloser(strings.NewReader("PK")),
	}, nil
}

func (f *fakeRunService) Rejudge(ctx context.Context, viewer model.Identity, guid string, debug bool) error {
	f.viewer, f.guid, f.debug = viewer, guid, debug
	return f.err
}

func (f *fakeRunService) Disqualify(ctx context.Context, viewer model.Identity, guid string) error {
	f.viewer, f.guid = viewer, guid
	return f.err
}

func (f *fakeRunService) List(ctx context.Context, viewer model.Identity, in service.ListInput) ([]service.RunSummary, error) {
	f.viewer, f.listInput = viewer, in
	return []service.RunSummary{{GUID: "abc"}}, f.err
}

func (f *fakeRunService) Counts(ctx context.Context) (*service.Counts, error) {
	return &service.Counts{Total: map[string]int64{"2024-03-05": 2}, AC: map[string]int64{"2024-03-05": 1}}, f.err
}

func newRouter(svc controller.RunService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.TraceContextMiddleware())
	api := router.Group("/api/v1/runs")
	api.Use(middleware.AuthMiddleware(middleware.NewTokenVerifier(secret, "")))
	controller.NewRunController(svc).Register(api)
	return router
}

func bearer(t *testing.T, identityID int64, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"identity_id": identityID, "username": "alice", "role": role, "typ": "access",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + signed
}

func do(t *testing.T, router *gin.Engine, method, target string, body []byte, auth string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	testutil.MustUnmarshalJSON(t, w.Body.Bytes(), &resp)
	return resp
}

func TestCreate(t *testing.T) {
	svc := &fakeRunService{}
	router := newRouter(svc)

	body, _ := json.Marshal(map[string]interface{}{
		"problem_alias": "sumas", "language": "py3", "source": "print(1)", "problemset_id": 9,
	})
	w := do(t, router, http.MethodPost, "/api/v1/runs", body, bearer(t, 7, ""))
	testutil.AssertEqual(t, w.Code, http.StatusOK)
	testutil.AssertEqual(t, svc.created.Identity.IdentityID, int64(7))
	testutil.AssertEqual(t, *svc.created.ProblemsetID, int64(9))

	var payload struct {
		Data controller.CreateResponse `json:"data"`
	}
	testutil.MustUnmarshalJSON(t, w.Body.Bytes(), &payload)
	testutil.AssertEqual(t, payload.Data.GUID, "abc")
	testutil.AssertEqual(t, payload.Data.SubmissionDeadline, int64(0))
	testutil.AssertEqual(t, payload.Data.NextSubmissionTimestamp, int64(1700000060))
}

func TestCreateBadBody(t *testing.T) {
	router := newRouter(&fakeRunService{})
	w := do(t, router, http.MethodPost, "/api/v1/runs", []byte(`{"language":"py3"}`), bearer(t, 7, ""))
	testutil.AssertEqual(t, w.Code, http.StatusBadRequest)
}

func TestRefusalCarriesReason(t *testing.T) {
	svc := &fakeRunService{err: appErr.NotAllowed(appErr.ReasonRunWaitGap)}
	router := newRouter(svc)
	body, _ := json.Marshal(map[string]interface{}{"problem_alias": "sumas", "language": "py3", "source": "x"})

	w := do(t, router, http.MethodPost, "/api/v1/runs", body, bearer(t, 7, ""))
	testutil.AssertEqual(t, w.Code, http.StatusForbidden)
	resp := decode(t, w)
	testutil.AssertEqual(t, resp.Code, appErr.NotAllowedToSubmit)
	testutil.AssertEqual(t, resp.Reason, appErr.ReasonRunWaitGap)
	testutil.AssertTrue(t, resp.TraceID != "", "trace id should be echoed")
}

func TestUnauthenticated(t *testing.T) {
	router := newRouter(&fakeRunService{})
	w := do(t, router, http.MethodGet, "/api/v1/runs/abc/status", nil, "")
	testutil.AssertEqual(t, w.Code, http.StatusUnauthorized)
}

func TestViews(t *testing.T) {
	svc := &fakeRunService{}
	router := newRouter(svc)
	auth := bearer(t, 7, "admin")

	for _, path := range []string{"status", "details", "source"} {
		w := do(t, router, http.MethodGet, "/api/v1/runs/abc/"+path, nil, auth)
		testutil.AssertEqual(t, w.Code, http.StatusOK)
		testutil.AssertEqual(t, svc.guid, "abc")
		testutil.AssertTrue(t, svc.viewer.Sysadmin, "admin role maps to sysadmin")
	}

	svc.err = appErr.Refuse(appErr.SubmissionNotFound, appErr.ReasonRunNotFound)
	w := do(t, router, http.MethodGet, "/api/v1/runs/zzz/status", nil, auth)
	testutil.AssertEqual(t, w.Code, http.StatusNotFound)
	testutil.AssertEqual(t, decode(t, w).Reason, appErr.ReasonRunNotFound)
}

func TestEdits(t *testing.T) {
	svc := &fakeRunService{}
	router := newRouter(svc)
	auth := bearer(t, 7, "")

	w := do(t, router, http.MethodPost, "/api/v1/runs/abc/rejudge?debug=true", nil, auth)
	testutil.AssertEqual(t, w.Code, http.StatusOK)
	testutil.AssertTrue(t, svc.debug, "debug flag forwarded")

	w = do(t, router, http.MethodPost, "/api/v1/runs/abc/disqualify", nil, auth)
	testutil.AssertEqual(t, w.Code, http.StatusOK)
	testutil.AssertTrue(t, strings.Contains(w.Body.String(), `"status":"ok"`), "edit acknowledged")
}

func TestDownload(t *testing.T) {
	svc := &fakeRunService{}
	router := newRouter(svc)

	w := do(t, router, http.MethodGet, "/api/v1/runs/abc/download?show_diff=true", nil, bearer(t, 7, ""))
	testutil.AssertEqual(t, w.Code, http.StatusOK)
	testutil.AssertEqual(t, w.Header().Get("Content-Type"), "application/zip")
	testutil.AssertEqual(t, w.Header().Get("Content-Disposition"), `attachment; filename="abc.zip"`)
	testutil.AssertEqual(t, w.Body.String(), "PK")
	testutil.AssertTrue(t, svc.showDiff, "show_diff forwarded")

	svc.err = appErr.Refuse(appErr.NotFound, appErr.ReasonRunNotFound)
	w = do(t, router, http.MethodGet, "/api/v1/runs/abc/download", nil, bearer(t, 7, ""))
	testutil.AssertEqual(t, w.Code, http.StatusNotFound)
}

func TestListAndCounts(t *testing.T) {
	svc := &fakeRunService{}
	router := newRouter(svc)

	w := do(t, router, http.MethodGet, "/api/v1/runs?status=ready&verdict=AC&offset=5&rowcount=10&username=bob", nil, bearer(t, 1, "admin"))
	testutil.AssertEqual(t, w.Code, http.StatusOK)
	testutil.AssertEqual(t, svc.listInput, service.ListInput{Status: "ready", Verdict: "AC", Username: "bob", Offset: 5, Rowcount: 10})

	w = do(t, router, http.MethodGet, "/api/v1/runs?offset=abc", nil, bearer(t, 1, "admin"))
	testutil.AssertEqual(t, w.Code, http.StatusBadRequest)

	w = do(t, router, http.MethodGet, "/api/v1/runs/counts", nil, bearer(t, 1, ""))
	testutil.AssertEqual(t, w.Code, http.StatusOK)
	testutil.AssertTrue(t, strings.Contains(w.Body.String(), `"2024-03-05":2`), "counts returned")
}
