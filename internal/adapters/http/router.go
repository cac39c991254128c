package http

import (
	"net/http"
	"time"

	"github.com/dkeye/voicerelay/internal/app"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type Deps struct {
	Registry *app.Registry
	// Gatherer backs /metrics; nil omits the route.
	Gatherer prometheus.Gatherer
	// Events serves the websocket feed; nil omits the route.
	Events  http.Handler
	Started time.Time
}

type clientView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Addr         string    `json:"addr"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeen     time.Time `json:"last_seen"`
}

func SetupRouter(mode string, d Deps) *gin.Engine {
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	if d.Started.IsZero() {
		d.Started = time.Now()
	}

	api := r.Group("/api")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"sessions":       d.Registry.Count(),
			"uptime_seconds": int64(time.Since(d.Started).Seconds()),
		})
	})

	api.GET("/clients", func(c *gin.Context) {
		sessions := d.Registry.Sessions()
		out := make([]clientView, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, clientView{
				ID:           string(s.ID),
				Name:         s.Name,
				Addr:         s.Addr.String(),
				RegisteredAt: s.RegisteredAt,
				LastSeen:     s.LastSeen,
			})
		}
		c.JSON(http.StatusOK, gin.H{"clients": out})
	})

	if d.Events != nil {
		api.GET("/ws/events", func(c *gin.Context) {
			log.Info().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("ws events endpoint hit")
			d.Events.ServeHTTP(c.Writer, c.Request)
		})
	}

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	log.Info().Str("module", "adapters.http").Bool("metrics", d.Gatherer != nil).Bool("events", d.Events != nil).Msg("router setup")
	return r
}
