package admin_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/randalmurphal/flowhost/pkg/flowgraph/admin"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/app"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/module/builtin"
)

const shopSource = `
name: shop
network:
  - {port: 8080, protocol: http}
flows:
  main:
    - put: {values: {greeting: hello}}
  strict:
    - route:
        path: kind
        routes:
          a: [{put: {values: {picked: a}}}]
  broken:
    - fail: {message: nope}
`

// fakeDot writes a stand-in for graphviz that logs each call.
const fakeDot = `#!/bin/sh
echo "$1" >> "$(dirname "$0")/calls"
echo "<svg>rendered</svg>" > "$3"
`

type ServerSuite struct {
	suite.Suite
	mgr    *app.Manager
	srv    *admin.Server
	srcDir string
	dotDir string
	ctx    context.Context
	cancel context.CancelFunc
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 10*time.Second)

	reg, err := builtin.NewRegistry()
	s.Require().NoError(err)
	s.mgr, err = app.NewManager(app.WithDataDir(s.T().TempDir()), app.WithRegistry(reg))
	s.Require().NoError(err)

	s.dotDir = s.T().TempDir()
	dot := filepath.Join(s.dotDir, "dot")
	s.Require().NoError(os.WriteFile(dot, []byte(fakeDot), 0o755))

	s.srv, err = admin.NewServer(s.mgr, admin.WithDotPath(dot))
	s.Require().NoError(err)

	s.srcDir = s.T().TempDir()
	path := s.writeSource("shop.yaml", shopSource)
	rec := s.do(http.MethodPost, "/apps/shop", `{"path": "`+path+`"}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
}

func (s *ServerSuite) TearDownTest() {
	s.srv.Close()
	s.NoError(s.mgr.Close(context.Background()))
	s.cancel()
}

func (s *ServerSuite) writeSource(name, content string) string {
	path := filepath.Join(s.srcDir, name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (s *ServerSuite) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body)).WithContext(s.ctx)
	rec := httptest.NewRecorder()
	s.srv.ServeHTTP(rec, req)
	return rec
}

func (s *ServerSuite) decode(rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *ServerSuite) dotCalls() int {
	data, err := os.ReadFile(filepath.Join(s.dotDir, "calls"))
	if os.IsNotExist(err) {
		return 0
	}
	s.Require().NoError(err)
	return strings.Count(string(data), "\n")
}

// TestHealth tests the health endpoint.
func (s *ServerSuite) TestHealth() {
	rec := s.do(http.MethodGet, "/healthz", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(float64(1), s.decode(rec)["applications"])
}

// TestGetAndList tests application views.
func (s *ServerSuite) TestGetAndList() {
	rec := s.do(http.MethodGet, "/apps/shop", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	view := s.decode(rec)
	s.Equal("shop", view["name"])
	s.Equal(float64(1), view["version"])
	s.Equal(true, view["persisted"])
	s.Contains(view["flows"], "main")
	network := view["network"].([]any)
	s.Require().Len(network, 1)
	s.Equal("http://localhost:8080", network[0].(map[string]any)["url"])

	rec = s.do(http.MethodGet, "/apps", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var list []map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &list))
	s.Require().Len(list, 1)
	s.Equal("shop", list[0]["identity"])

	rec = s.do(http.MethodGet, "/apps/missing", "")
	s.Equal(http.StatusNotFound, rec.Code)
	s.Contains(s.decode(rec)["error"], "missing")
}

// TestDeployErrors tests status codes of failed deploys.
func (s *ServerSuite) TestDeployErrors() {
	rec := s.do(http.MethodPost, "/apps/other", `not json`)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/apps/other?transient=true", "flows: {main: [{nosuch: {}}]}")
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(s.decode(rec)["error"], "nosuch")

	failing := "use: [{sqlite: {path: ':memory:', init: ['not sql']}}]\nflows: {main: [{put: {values: {x: 1}}}]}"
	rec = s.do(http.MethodPost, "/apps/other?transient=true", failing)
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
	s.Equal(1, s.mgr.Version("other"))

	rec = s.do(http.MethodPost, "/apps/other", `{"path": "/does/not/exist.yaml"}`)
	s.Equal(http.StatusNotFound, rec.Code)
}

// TestTransientDeploy tests deploying a raw body.
func (s *ServerSuite) TestTransientDeploy() {
	rec := s.do(http.MethodPost, "/apps/inline?transient=true", "flows: {main: [{put: {values: {x: 1}}}]}")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal(false, s.decode(rec)["persisted"])

	rec = s.do(http.MethodPost, "/apps/inline/run/main", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(float64(1), s.decode(rec)["x"])

	rec = s.do(http.MethodPost, "/apps/inline/redeploy", "")
	s.Equal(http.StatusNotFound, rec.Code)
}

// TestRun tests the run protocol adapter.
func (s *ServerSuite) TestRun() {
	rec := s.do(http.MethodPost, "/apps/shop/run/main", `{"name": "ada"}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	doc := s.decode(rec)
	s.Equal("hello", doc["greeting"])
	s.Equal("ada", doc["name"])

	rec = s.do(http.MethodPost, "/apps/shop/run/strict", `{"kind": "b"}`)
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal(true, s.decode(rec)["halted"])

	rec = s.do(http.MethodPost, "/apps/shop/run/broken", "")
	s.Equal(http.StatusInternalServerError, rec.Code)
	s.Contains(s.decode(rec)["error"], "nope")

	rec = s.do(http.MethodPost, "/apps/shop/run/nosuch", "")
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPost, "/apps/shop/run/main", `[1, 2]`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

// TestRedeployAndUndeploy tests the lifecycle endpoints.
func (s *ServerSuite) TestRedeployAndUndeploy() {
	rec := s.do(http.MethodPost, "/apps/shop/redeploy", "")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal(float64(2), s.decode(rec)["version"])

	rec = s.do(http.MethodDelete, "/apps/shop", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	rec = s.do(http.MethodDelete, "/apps/shop", "")
	s.Equal(http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodPost, "/apps/shop/run/main", "")
	s.Equal(http.StatusNotFound, rec.Code)
}

// TestValidate tests validation of bodies and paths.
func (s *ServerSuite) TestValidate() {
	rec := s.do(http.MethodPost, "/validate", shopSource)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/validate", "flows: {}")
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(s.decode(rec)["error"], "no flows")

	path := s.writeSource("bad.yaml", "flows: {main: [{nosuch: {}}]}")
	rec = s.do(http.MethodPost, "/validate?path="+path, "")
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(s.decode(rec)["error"], "bad.yaml:1:")
}

// TestVisualize tests DOT output and cached image rendering.
func (s *ServerSuite) TestVisualize() {
	rec := s.do(http.MethodGet, "/apps/shop/visualize/main", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "digraph")

	rec = s.do(http.MethodGet, "/apps/shop/visualize/main?format=svg", "")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal("image/svg+xml", rec.Header().Get("Content-Type"))
	s.Contains(rec.Body.String(), "rendered")

	s.do(http.MethodGet, "/apps/shop/visualize/main?format=svg", "")
	s.Equal(1, s.dotCalls(), "second render served from cache")

	rec = s.do(http.MethodPost, "/apps/shop/redeploy", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.do(http.MethodGet, "/apps/shop/visualize/main?format=svg", "")
	s.Equal(2, s.dotCalls())

	rec = s.do(http.MethodGet, "/apps/shop/visualize/main?format=gif", "")
	s.Equal(http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodGet, "/apps/shop/visualize/nosuch", "")
	s.Equal(http.StatusNotFound, rec.Code)
}

// TestMetrics tests the Prometheus exposition of flow stats.
func (s *ServerSuite) TestMetrics() {
	s.do(http.MethodPost, "/apps/shop/run/main", "")
	s.do(http.MethodPost, "/apps/shop/run/broken", "")

	rec := s.do(http.MethodGet, "/metrics", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	body := rec.Body.String()
	s.Contains(body, `flowhost_flow_requests_total{flow="main",identity="shop"} 1`)
	s.Contains(body, `flowhost_flow_errors_total{flow="broken",identity="shop"} 1`)
	s.Contains(body, `flowhost_app_version{identity="shop"} 1`)
}
