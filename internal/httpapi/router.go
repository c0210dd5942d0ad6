package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"framecast/internal/httpapi/handlers"
	"framecast/internal/httpkit"
	"framecast/internal/pkg/logger"
	"framecast/internal/pkg/middleware"
)

type Deps struct {
	Handlers       handlers.Deps
	AllowedOrigins []string
	Log            *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		ExposedHeaders: []string{"X-Request-ID", "Content-Length"},
	}))

	if d.Handlers.Log == nil {
		d.Handlers.Log = log
	}
	h := handlers.New(d.Handlers)
	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(log, fn)
	}

	r.Get("/health", h.Health)

	r.Post("/renders", wrap(h.PostRender))
	r.Get("/renders", wrap(h.ListRenders))
	r.Get("/renders/{renderId}", wrap(h.GetRender))
	r.Get("/renders/{renderId}/artifact", wrap(h.StreamArtifact))

	return r
}
