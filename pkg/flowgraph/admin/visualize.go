package admin

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"

	"github.com/randalmurphal/flowhost/pkg/flowgraph/app"
	fgerrors "github.com/randalmurphal/flowhost/pkg/flowgraph/errors"
)

var imageTypes = map[string]string{
	"svg": "image/svg+xml",
	"png": "image/png",
}

func (s *Server) handleVisualize(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	identity, flow := vars["identity"], vars["flow"]
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "dot"
	}

	vis, err := s.mgr.Visualize(identity, flow)
	if err != nil {
		respondWithError(w, err)
		return
	}
	if format == "dot" {
		w.Header().Set("Content-Type", "text/vnd.graphviz")
		_, _ = w.Write([]byte(vis.DOT()))
		return
	}

	contentType, ok := imageTypes[format]
	if !ok {
		respondWithError(w, fmt.Errorf("%w: unsupported format %q", errBadRequest, format))
		return
	}

	a, ok := s.mgr.Get(identity)
	if !ok {
		respondWithError(w, fmt.Errorf("%w: %s", app.ErrApplicationNotFound, identity))
		return
	}
	key := fmt.Sprintf("%s/%d/%s.%s", identity, a.Version(), flow, format)
	img, found := s.images.Get(key)
	if !found {
		rendered, err := s.render(r, vis.DOT(), format)
		if err != nil {
			s.logger.Warn("render failed", "identity", identity, "flow", flow, "format", format, "error", err)
			respondWithError(w, err)
			return
		}
		s.images.Set(key, rendered, cache.DefaultExpiration)
		img = rendered
	}

	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(img.([]byte))
}

// render runs graphviz over dot inside the manager's tmp dir.
func (s *Server) render(r *http.Request, dot, format string) ([]byte, error) {
	dir, err := os.MkdirTemp(s.mgr.TmpDir(), "render-*")
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "graph.dot")
	out := filepath.Join(dir, "graph."+format)
	if err := os.WriteFile(in, []byte(dot), 0o644); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}

	cmd := exec.CommandContext(r.Context(), s.dotPath, "-T"+format, "-o", out, in)
	if output, err := cmd.CombinedOutput(); err != nil {
		msg := strings.TrimSpace(string(output))
		return nil, fgerrors.NewCategorized(fmt.Errorf("%s: %w: %s", s.dotPath, err, msg), fgerrors.CategoryTransient, "render")
	}
	return os.ReadFile(out)
}

// invalidate drops every cached image of identity.
func (s *Server) invalidate(identity string) {
	prefix := identity + "/"
	for key := range s.images.Items() {
		if strings.HasPrefix(key, prefix) {
			s.images.Delete(key)
		}
	}
}
