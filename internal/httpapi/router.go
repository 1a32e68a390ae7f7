package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// NewRouter wires the engine API.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	r := chi.NewRouter()
	r.Use(Cors, RequestID, Recover(d.Logger), AccessLog(d.Logger))

	r.Get("/health", HealthHandler{Mode: d.ExecutorMode, Connected: d.Connected, Now: d.Now}.Health)
	r.Get("/regions", Regions)

	sh := SessionHandler{Session: d.Session, CfgVal: d.CfgVal}
	r.Route("/session", func(r chi.Router) {
		r.Get("/", sh.Get)
		r.Get("/items", sh.Items)
		r.Post("/start", sh.Start)
		r.Post("/pause", sh.Pause)
		r.Post("/resume", sh.Resume)
		r.Post("/stop", sh.Stop)
	})

	hh := HistoryHandler{History: d.History, Session: d.Session, Hub: d.Hub}
	r.Route("/history", func(r chi.Router) {
		r.Get("/", hh.List)
		r.Delete("/{id}", hh.Delete)
		r.Post("/{id}/load", hh.Load)
	})

	xh := ExportHandler{Session: d.Session, Now: d.Now}
	r.Get("/export/csv", xh.CSV)
	r.Get("/export/json", xh.JSON)

	r.Post("/executor/reconnect", ReconnectHandler{Reconnect: d.Reconnect, Connected: d.Connected}.Trigger)

	if d.CfgVal != nil {
		ch := ConfigHandler{CfgVal: d.CfgVal, UserCfgPath: d.UserCfgPath, LoadCfg: d.LoadCfg}
		r.Get("/config", ch.Get)
		r.Put("/config", ch.Put)
		r.Get("/config/path", ch.Path)
		r.Get("/config/validate", ch.Validate)
	}

	if d.Checkpoint != nil {
		r.Post("/db/checkpoint", DBHandler{Flush: d.Checkpoint}.Checkpoint)
	}

	if d.Hub != nil {
		r.Get("/events", EventsHandler{Hub: d.Hub}.ServeSSE)
	}
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}
	if d.ShutdownToken != "" && d.Shutdown != nil {
		r.Post("/shutdown", ShutdownHandler(d.ShutdownToken, d.Shutdown))
	}
	return r
}
