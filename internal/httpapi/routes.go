package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/rps-lan/internal/hub"
	"github.com/DoyleJ11/rps-lan/internal/ws"
)

func SetupRoutes(h *hub.Hub, s Sessions, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/hosts", ListHosts(s, logger))

	r.Route("/session", func(r chi.Router) {
		r.Get("/", GetSession(s, logger))
		r.Post("/host", HostSession(s, logger))
		r.Post("/join", JoinSession(s, logger))
		r.Post("/choice", SubmitChoice(s, logger))
		r.Post("/chat", SendChat(s, logger))
		r.Post("/disconnect", DisconnectSession(s, logger))
	})

	r.Get("/ws", ws.Handler(h, s, logger))
	return r
}
