package main

import (
	"expvar"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/classync/classync/core"
)

// startDebugServer serves /debug/pprof and /debug/vars on conf.Server.DebugHost.
func startDebugServer(conf *core.Config, logger core.Logger) {
	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Mount("/debug", middleware.Profiler())
	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, router); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()
}
