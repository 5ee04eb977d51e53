package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/coachlink/internal/api/v1"
	"github.com/gosuda/coachlink/internal/api/ws"
)

func registerAPIRoutes(api huma.API, deps Deps) {
	v1.RegisterSessionRoutes(api, deps.Session)
	if deps.Health != nil {
		v1.RegisterHealthRoutes(api, deps.Session, deps.Health)
	}
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/session", hub.ServeSession)
}
