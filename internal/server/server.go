// Package server exposes the content operations and the repository overview
// over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/content-control-plane/ccp/internal/contentsync"
	"github.com/content-control-plane/ccp/internal/logging"
	"github.com/content-control-plane/ccp/internal/operation"
	"github.com/content-control-plane/ccp/internal/service"
)

const maxBodySize = 10 << 20

const (
	CodeInvalidRequest = "invalid_request"
	CodeStaleContent   = "stale_content"
	CodeNotConfigured  = "not_configured"
	CodeInternal       = "internal_error"
)

type ErrorV1 struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	UpdateURL string `json:"update_url,omitempty"`
}

type ChangesRequestV1 struct {
	Changes []service.Change `json:"changes"`
}

type Server struct {
	router *http.ServeMux
	svc    *service.Service
	log    *logging.Logger
	prefix string
}

func New() *Server {
	return &Server{log: logging.NewNop()}
}

func (s *Server) WithRouter(router *http.ServeMux) *Server {
	s.router = router
	return s
}

func (s *Server) WithService(svc *service.Service) *Server {
	s.svc = svc
	return s
}

func (s *Server) WithLogger(log *logging.Logger) *Server {
	s.log = log
	return s
}

// Init registers every route on the router, below the configured API prefix.
func (s *Server) Init() *Server {
	if s.router == nil {
		s.router = http.NewServeMux()
	}

	s.prefix = s.svc.Config().Service.Prefix()

	s.handle("GET /health", s.health)
	s.router.Handle("GET "+s.prefix+"/metrics", promhttp.Handler())
	s.handle("GET /v1/repository/commits", s.v1CommitsList)
	s.handle("GET /v1/repository/journal", s.v1JournalList)
	s.handle("POST /v1/repository/update", s.v1RepositoryUpdate)
	s.handle("PUT /v1/nodes/{root}/{id}", s.v1NodesPut)
	s.handle("DELETE /v1/nodes/{root}/{id}", s.v1NodesDelete)
	s.handle("POST /v1/changes", s.v1ChangesPost)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	method, path, _ := strings.Cut(pattern, " ")
	s.router.HandleFunc(method+" "+s.prefix+path, h)
}

func (*Server) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) v1CommitsList(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.limit(w, r, s.svc.CommitLimit())
	if !ok {
		return
	}

	JSONOK(w, map[string]any{"result": s.svc.RecentCommits(r.Context(), limit)})
}

func (s *Server) v1JournalList(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.limit(w, r, s.svc.CommitLimit())
	if !ok {
		return
	}

	entries, err := s.svc.Journal().List(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	JSONOK(w, map[string]any{"result": entries})
}

// v1RepositoryUpdate pulls the content branch and sends the editor back to
// where they came from.
func (s *Server) v1RepositoryUpdate(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Update(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}

	target := r.URL.Query().Get("referer")
	if !isLocal(target) {
		target = s.prefix + "/v1/repository/commits"
	}

	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) v1NodesPut(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		JSONError(w, http.StatusBadRequest, ErrorV1{Code: CodeInvalidRequest, Message: err.Error()})
		return
	}

	s.apply(w, r, service.Change{
		Action: "save",
		Root:   r.PathValue("root"),
		ID:     r.PathValue("id"),
		Body:   string(body),
	})
}

func (s *Server) v1NodesDelete(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, service.Change{
		Action: "remove",
		Root:   r.PathValue("root"),
		ID:     r.PathValue("id"),
	})
}

func (s *Server) v1ChangesPost(w http.ResponseWriter, r *http.Request) {
	var req ChangesRequestV1
	if err := newJSONDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		JSONError(w, http.StatusBadRequest, ErrorV1{Code: CodeInvalidRequest, Message: err.Error()})
		return
	}

	s.apply(w, r, req.Changes...)
}

// apply runs changes as one operation. A stale working copy is reported with
// the URL that updates it and brings the editor back to this request.
func (s *Server) apply(w http.ResponseWriter, r *http.Request, changes ...service.Change) {
	updateURL := s.prefix + "/v1/repository/update?referer=" + url.QueryEscape(r.URL.RequestURI())

	err := s.svc.Do(r.Context(), updateURL, func(ctx context.Context, op *operation.Operation) error {
		return s.svc.Apply(ctx, op, changes...)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	JSONOK(w, struct{}{})
}

func (s *Server) limit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, true
	}

	limit, err := strconv.Atoi(v)
	if err != nil || limit < 1 {
		JSONError(w, http.StatusBadRequest, ErrorV1{Code: CodeInvalidRequest, Message: "limit must be a positive integer"})
		return 0, false
	}

	return limit, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		stale  *contentsync.StaleContentError
		cfgErr *contentsync.ConfigurationError
	)

	switch {
	case errors.As(err, &stale):
		JSONError(w, http.StatusConflict, ErrorV1{Code: CodeStaleContent, Message: contentsync.ErrStaleContent.Error(), UpdateURL: stale.UpdateURL})
	case errors.As(err, &cfgErr):
		JSONError(w, http.StatusServiceUnavailable, ErrorV1{Code: CodeNotConfigured, Message: err.Error()})
	case errors.Is(err, service.ErrInvalidNode):
		JSONError(w, http.StatusBadRequest, ErrorV1{Code: CodeInvalidRequest, Message: err.Error()})
	default:
		s.log.Errorf("request failed: %v", err)
		JSONError(w, http.StatusInternalServerError, ErrorV1{Code: CodeInternal, Message: err.Error()})
	}
}

// isLocal reports whether target is a path on this server.
func isLocal(target string) bool {
	return strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//") && !strings.HasPrefix(target, `/\`)
}

func JSONOK(w http.ResponseWriter, v any) {
	JSON(w, http.StatusOK, v)
}

func JSONError(w http.ResponseWriter, code int, e ErrorV1) {
	JSON(w, code, e)
}

func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func newJSONDecoder(r io.Reader) *json.Decoder {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()
	return decoder
}
