// Package api exposes the tool registry over HTTP as JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cyp0633/davmutate/errs"
	"github.com/cyp0633/davmutate/tools"
)

const maxBody = 1 << 20

type Server struct {
	registry *tools.Registry
	auth     BearerAuth
	log      *slog.Logger
	httpSrv  *http.Server
}

type Options struct {
	Registry *tools.Registry
	Auth     BearerAuth
	Logger   *slog.Logger
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{registry: opts.Registry, auth: opts.Auth, log: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/tools", s.handleList)
	mux.HandleFunc("GET /v1/tools/{name}", s.handleDescribe)
	mux.HandleFunc("POST /v1/tools/{name}", s.handleInvoke)
	s.httpSrv = &http.Server{Handler: s.wrapAuth(mux), ReadHeaderTimeout: 5 * time.Second}
	return s
}

// Handler returns the routed handler including authentication.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Serve listens on bind until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, bind string) error {
	if bind == "" {
		return errors.New("bind required")
	}
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}
	s.log.Info("api listening", "addr", ln.Addr().String())
	go s.shutdownOnContext(ctx)
	if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) wrapAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" && !s.auth.Authorize(r) {
			writeErr(w, http.StatusUnauthorized, &tools.ErrorBody{Kind: errs.Kind("unauthorized"), Message: "unauthorized", Hint: "send Authorization: Bearer <token>"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) shutdownOnContext(ctx context.Context) {
	<-ctx.Done()
	timeout, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = s.httpSrv.Shutdown(timeout)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.registry.List()})
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	meta, err := s.registry.Lookup(r.PathValue("name"))
	if err != nil {
		writeErr(w, http.StatusNotFound, &tools.ErrorBody{Kind: errs.KindNotFound, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeErr(w, http.StatusRequestEntityTooLarge, &tools.ErrorBody{Kind: errs.KindValidation, Message: "request body too large"})
		return
	}

	resp, err := s.registry.Invoke(r.Context(), name, body)
	if errors.Is(err, tools.ErrUnknownTool) {
		writeErr(w, http.StatusNotFound, &tools.ErrorBody{Kind: errs.KindNotFound, Message: err.Error(),
			Hint: "list the available tools at /v1/tools"})
		return
	}
	if err != nil {
		s.log.Error("tool invocation failed", "tool", name, "error", err)
		writeErr(w, http.StatusInternalServerError, &tools.ErrorBody{Kind: errs.KindInternal, Message: err.Error()})
		return
	}
	writeJSON(w, statusFor(resp), resp)
}

func statusFor(resp *tools.Response) int {
	if resp.OK || resp.Error == nil {
		return http.StatusOK
	}
	switch resp.Error.Kind {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, body *tools.ErrorBody) {
	writeJSON(w, code, tools.Response{Error: body})
}
