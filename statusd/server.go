// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package statusd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-lpc/comedi/runlog"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

type config struct {
	msg    *log.Logger
	access io.Writer
	runs   runlog.Store
	cancel func() error
}

func newConfig() config {
	return config{
		msg:    log.New(os.Stdout, "statusd: ", 0),
		access: io.Discard,
	}
}

// Option configures a Server.
type Option func(*config)

// WithLogger sets the logger of the server.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithAccessLog writes an Apache-style access log to w.
func WithAccessLog(w io.Writer) Option {
	return func(cfg *config) {
		cfg.access = w
	}
}

// WithRunLog serves the records of store under /api/runs.
func WithRunLog(store runlog.Store) Option {
	return func(cfg *config) {
		cfg.runs = store
	}
}

// WithCancel sets the function called by POST /api/cancel.
func WithCancel(f func() error) Option {
	return func(cfg *config) {
		cfg.cancel = f
	}
}

// Server serves the status of an acquisition.
type Server struct {
	msg    *log.Logger
	board  *Board
	runs   runlog.Store
	cancel func() error

	router  *mux.Router
	handler http.Handler
}

// New creates a status server reading snapshots from board.
func New(board *Board, opts ...Option) *Server {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	srv := &Server{
		msg:    cfg.msg,
		board:  board,
		runs:   cfg.runs,
		cancel: cfg.cancel,
	}
	srv.configureRouter()
	srv.handler = handlers.LoggingHandler(cfg.access, srv.router)
	return srv
}

func (srv *Server) configureRouter() {
	srv.router = mux.NewRouter()
	api := srv.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", srv.handleStatus()).Methods("GET")
	api.HandleFunc("/bufinfo", srv.handleBufInfo()).Methods("GET")
	api.HandleFunc("/cancel", srv.handleCancel()).Methods("POST")
	api.HandleFunc("/runs", srv.handleRuns()).Methods("GET")
}

// Handler returns the HTTP handler of the server.
func (srv *Server) Handler() http.Handler { return srv.handler }

// ListenAndServe serves HTTP requests on addr until ctx is done.
func (srv *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		srv.msg.Printf("serving status on %s", addr)
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("statusd: could not serve: %w", err)
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := httpServer.Shutdown(sctx)
		if err != nil {
			return fmt.Errorf("statusd: could not shutdown: %w", err)
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("statusd: could not serve: %w", err)
		}
		return nil
	}
}

func (srv *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		srv.writeJSON(w, srv.board.Snapshot())
	}
}

func (srv *Server) handleBufInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		srv.writeJSON(w, srv.board.Snapshot().Buffer)
	}
}

func (srv *Server) handleCancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if srv.cancel == nil {
			http.Error(w, "cancellation not supported", http.StatusNotImplemented)
			return
		}
		err := srv.cancel()
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		srv.msg.Printf("cancel requested by %s", r.RemoteAddr)
		w.WriteHeader(http.StatusAccepted)
	}
}

func (srv *Server) handleRuns() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if srv.runs == nil {
			http.Error(w, "no run log", http.StatusNotFound)
			return
		}
		n := 0
		if v := r.URL.Query().Get("n"); v != "" {
			var err error
			n, err = strconv.Atoi(v)
			if err != nil {
				http.Error(w, fmt.Sprintf("invalid number of runs %q", v), http.StatusBadRequest)
				return
			}
		}
		recs, err := srv.runs.List(r.Context(), n)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if recs == nil {
			recs = []runlog.Record{}
		}
		srv.writeJSON(w, recs)
	}
}

func (srv *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		srv.msg.Printf("could not encode reply: %+v", err)
	}
}
