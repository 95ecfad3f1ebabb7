package handler

import (
	"net/http"

	"minetap/internal/services"

	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/do"
)

type Config struct {
	Container *do.Injector
	Mode      string
	Origins   []string
}

func New(cfg *Config) (http.Handler, error) {
	r := echo.New()
	r.Pre(middleware.RemoveTrailingSlash())
	if cfg.Mode == "debug" {
		r.Debug = true
		pprof.Register(r)
	}

	r.JSONSerializer = httpx.SegmentJSONSerializer{}
	r.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339}\t${method}\t${uri}\t${status}\t${latency_human}\n",
	}))
	r.Use(middleware.Recover())

	r.GET("", func(c echo.Context) error {
		return c.String(http.StatusOK, "⛏️")
	})

	routesAPIv1 := r.Group("/api/v1")
	{
		bot, err := do.Invoke[*services.Bot](cfg.Container)
		if err != nil {
			return nil, err
		}
		authentication, err := do.Invoke[*services.Authentication](cfg.Container)
		if err != nil {
			return nil, err
		}

		cors := middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.Origins,
			AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
			AllowCredentials: true,
			MaxAge:           60 * 60,
		})

		routesAPIv1.Use(cors)

		// /user/me takes raw init data and mints the JWT the other routes use
		routesAPIv1Me := routesAPIv1.Group("/user/me")
		routesAPIv1Me.Use(Authn(bot))
		{
			u := groupUser{cfg.Container}
			routesAPIv1Me.GET("", u.Me)
		}

		routesAPIv1.Use(Authn(authentication)) // Authn will NOT terminate unauthenticated request.

		routesAPIv1User := routesAPIv1.Group("/user")
		{
			u := groupUser{cfg.Container}
			routesAPIv1User.GET("/friends", u.GetFriendList)
		}

		routesAPIv1Leaderboard := routesAPIv1.Group("/leaderboard")
		{
			l := groupLeaderboard{cfg.Container}
			routesAPIv1Leaderboard.GET("/points", l.GetPointsLeaderboard)
		}

		routesAPIv1Mining := routesAPIv1.Group("/mining")
		{
			m := groupMining{cfg.Container}
			routesAPIv1Mining.POST("/start", m.Start)
			routesAPIv1Mining.GET("/stats", m.Stats)
			routesAPIv1Mining.POST("/claim", m.Claim)
			routesAPIv1Mining.GET("/claims", m.Claims)
			routesAPIv1Mining.POST("/rate/refresh", m.RefreshRate)
		}
	}

	return r, nil
}
