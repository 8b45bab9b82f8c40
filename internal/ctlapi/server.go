package ctlapi

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/RevCBH/kyco/internal/config"
	"github.com/RevCBH/kyco/internal/events"
	"github.com/RevCBH/kyco/internal/gitops"
	"github.com/RevCBH/kyco/internal/group"
	"github.com/RevCBH/kyco/internal/job"
)

// maxBodyBytes caps every request body at 2 MiB.
const maxBodyBytes = 2 * 1024 * 1024

// tokenHeader carries the optional bearer token.
const tokenHeader = "X-KYCO-Token"

// Control is the narrow scheduler surface the API needs: a nudge after
// jobs are queued (create and queue handlers) and cooperative
// cancellation, without importing the scheduler package's admission
// internals.
type Control interface {
	Wake()
	Cancel(jobID uint64) bool
}

// Server is the HTTP control API: a net/http.Server built around one
// ServeMux, with Start/Stop and a listener field so tests can bind an
// ephemeral port.
type Server struct {
	Jobs      *job.Store
	Groups    *group.Store
	Config    *config.Config
	Bus       *events.Bus
	Scheduler Control
	GitOpsFor func(workspacePath string) *gitops.GitOps

	httpServer *http.Server
	listener   net.Listener
	addr       string
}

// New builds a Server and its handler tree. It does not start listening;
// call Start for that.
func New(jobs *job.Store, groups *group.Store, cfg *config.Config, bus *events.Bus, scheduler Control, gitOpsFor func(string) *gitops.GitOps) *Server {
	s := &Server{
		Jobs:      jobs,
		Groups:    groups,
		Config:    cfg,
		Bus:       bus,
		Scheduler: scheduler,
		GitOpsFor: gitOpsFor,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ctl/jobs", s.handleListJobs)
	mux.HandleFunc("GET /ctl/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("POST /ctl/jobs", s.handleCreateJob)
	mux.HandleFunc("POST /ctl/jobs/{id}/queue", s.handleQueueJob)
	mux.HandleFunc("POST /ctl/jobs/{id}/merge", s.handleMergeJob)
	mux.HandleFunc("POST /ctl/jobs/{id}/reject", s.handleRejectJob)
	mux.HandleFunc("GET /ctl/jobs/{id}/diff", s.handleDiffJob)
	mux.HandleFunc("POST /ctl/jobs/{id}/cancel", s.handleCancelJob)
	mux.HandleFunc("DELETE /ctl/jobs/{id}", s.handleDeleteJob)

	mux.HandleFunc("GET /ctl/groups", s.handleListGroups)
	mux.HandleFunc("GET /ctl/groups/{id}", s.handleGetGroup)
	mux.HandleFunc("POST /ctl/groups/{id}/select", s.handleSelectGroupResult)
	mux.HandleFunc("POST /ctl/groups/{id}/merge", s.handleMergeGroup)

	s.httpServer = &http.Server{Handler: s.withMiddleware(mux)}
	return s
}

// Start binds a loopback-only listener on addr (the host is forced to
// 127.0.0.1 regardless of what addr specifies) and begins serving in a
// background goroutine.
func (s *Server) Start(addr string) error {
	if addr == "" {
		addr = ":4772"
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		port = addr
	}

	listener, err := net.Listen("tcp", "127.0.0.1:"+port)
	if err != nil {
		return fmt.Errorf("control API listen: %w", err)
	}
	s.listener = listener
	s.addr = listener.Addr().String()

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.emitSystem(fmt.Sprintf("control API server error: %v", err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the bound listen address (valid after Start).
func (s *Server) Addr() string {
	return s.addr
}

// withMiddleware wraps h with the body-size cap and, when a token is
// configured, bearer-token authentication.
func (s *Server) withMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

		if token := s.Config.ControlAPI.Token; token != "" {
			if r.Header.Get(tokenHeader) != token {
				writeError(w, http.StatusUnauthorized, "invalid or missing "+tokenHeader)
				return
			}
		}

		h.ServeHTTP(w, r)
	})
}

func (s *Server) emitSystem(msg string) {
	if s.Bus == nil {
		return
	}
	s.Bus.Emit(events.NewEvent(events.SystemLog, 0).WithPayload(msg))
}

func (s *Server) wake() {
	if s.Scheduler != nil {
		s.Scheduler.Wake()
	}
}
