package admin

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/randalmurphal/flowhost/pkg/flowgraph"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/app"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/document"
	fgerrors "github.com/randalmurphal/flowhost/pkg/flowgraph/errors"
)

const maxBody = 8 << 20

var errBadRequest = fgerrors.Sentinel(fgerrors.CategoryConfiguration, "bad request")

type networkView struct {
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	Host     string `json:"host,omitempty"`
	URL      string `json:"url"`
}

type appView struct {
	Identity   string                             `json:"identity"`
	Name       string                             `json:"name"`
	Version    int                                `json:"version"`
	DeployedAt time.Time                          `json:"deployed_at"`
	Paused     bool                               `json:"paused"`
	Source     string                             `json:"source"`
	Persisted  bool                               `json:"persisted"`
	Modules    []string                           `json:"modules"`
	Network    []networkView                      `json:"network"`
	Flows      map[string]flowgraph.StatsSnapshot `json:"flows"`
}

func (s *Server) view(a *app.Application) appView {
	v := appView{
		Identity:   a.Identity(),
		Name:       a.Name(),
		Version:    a.Version(),
		DeployedAt: a.DeployedAt(),
		Paused:     a.Paused(),
		Source:     a.Source().Name(),
		Persisted:  s.mgr.HasSource(a.Identity()),
		Modules:    a.Modules(),
		Network:    []networkView{},
		Flows:      a.Stats(),
	}
	for _, n := range a.Network() {
		v.Network = append(v.Network, networkView{Port: n.Port, Protocol: n.Protocol, Host: n.Host, URL: n.URL()})
	}
	return v
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]any{"status": "ok", "applications": len(s.mgr.List())})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	apps := s.mgr.List()
	out := make([]appView, 0, len(apps))
	for _, a := range apps {
		out = append(out, s.view(a))
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	identity := mux.Vars(r)["identity"]
	a, ok := s.mgr.Get(identity)
	if !ok {
		respondWithError(w, fmt.Errorf("%w: %s", app.ErrApplicationNotFound, identity))
		return
	}
	respondWithJSON(w, http.StatusOK, s.view(a))
}

type deployRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	identity := mux.Vars(r)["identity"]
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		respondWithError(w, fgerrors.Configuration(err, "read body"))
		return
	}

	var a *app.Application
	if transient, _ := strconv.ParseBool(r.URL.Query().Get("transient")); transient {
		a, err = s.mgr.DeployTransient(r.Context(), identity, app.ContentSource(identity, body))
	} else {
		var req deployRequest
		if err := json.Unmarshal(body, &req); err != nil || req.Path == "" {
			respondWithError(w, fmt.Errorf("%w: expected {\"path\": ...} or ?transient=true", errBadRequest))
			return
		}
		var src app.Source
		if src, err = app.FileSource(req.Path); err == nil {
			a, err = s.mgr.Deploy(r.Context(), identity, src)
		}
	}
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, s.view(a))
}

func (s *Server) handleRedeploy(w http.ResponseWriter, r *http.Request) {
	a, err := s.mgr.Redeploy(r.Context(), mux.Vars(r)["identity"])
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, s.view(a))
}

func (s *Server) handleUndeploy(w http.ResponseWriter, r *http.Request) {
	identity := mux.Vars(r)["identity"]
	if err := s.mgr.Undeploy(r.Context(), identity); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"identity": identity, "undeployed": true})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var src app.Source
	if path := r.URL.Query().Get("path"); path != "" {
		var err error
		if src, err = app.FileSource(path); err != nil {
			respondWithError(w, err)
			return
		}
	} else {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
		if err != nil {
			respondWithError(w, fgerrors.Configuration(err, "read body"))
			return
		}
		src = app.ContentSource("request", body)
	}

	if err := s.mgr.Validate(r.Context(), src); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"valid": true})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		respondWithError(w, fgerrors.Configuration(err, "read body"))
		return
	}
	doc := document.New()
	if len(body) > 0 {
		if doc, err = document.ParseJSON(body); err != nil {
			respondWithError(w, fgerrors.Configuration(err, "parse document"))
			return
		}
	}

	out, err := s.mgr.Await(r.Context(), vars["identity"], vars["flow"], doc)
	if err != nil {
		respondWithError(w, err)
		return
	}
	switch out.Kind {
	case flowgraph.OutcomeOK:
		respondWithJSON(w, http.StatusOK, out.Document)
	case flowgraph.OutcomeHalted:
		respondWithJSON(w, http.StatusNotFound, map[string]any{"halted": true})
	default:
		respondWithError(w, out.Err)
	}
}
