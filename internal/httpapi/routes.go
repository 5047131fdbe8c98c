package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/meme-arena/internal/auth"
	"github.com/DoyleJ11/meme-arena/internal/gateway"
	"github.com/DoyleJ11/meme-arena/internal/generator"
	"github.com/DoyleJ11/meme-arena/internal/hub"
	"github.com/DoyleJ11/meme-arena/internal/ws"
)

type Deps struct {
	Hub        *hub.Hub
	Auth       *auth.Auth
	Gateway    gateway.Admitter
	Situations SituationBatcher
	Generator  generator.Generator
	DeckMax    int
	Logger     *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.DeckMax < 1 {
		d.DeckMax = 1
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Logger))
	r.Use(d.Auth.Middleware)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Post("/guests", CreateGuest(d.Auth, d.Logger))
	r.Post("/api/chat", generator.Handler(d.Generator, d.Logger))
	r.Post("/lobbies", CreateLobby(d.Hub, d.Logger))
	r.Get("/ws", ws.Handler(d.Hub, d.Gateway, d.Logger))

	// Admitted viewers only
	r.Route("/lobbies/{code}", func(r chi.Router) {
		r.Use(admit(d.Gateway, d.Hub))
		r.Post("/join", JoinArena)
		r.Get("/state", GetArena)
		r.Post("/advance", AdvanceArena)
		r.Post("/chat", PostChat)
		r.Put("/draft", PutDraft)
		r.Delete("/session", LeaveArena)
		r.Post("/deck", Deck(d.Situations, d.DeckMax, d.Logger))
	})
	return r
}
