package handler

import (
	"strconv"

	"minetap/internal/interfaces"
	"minetap/internal/models"
	"minetap/internal/services"

	"github.com/go-redis/redis_rate/v10"
	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo/v4"
	"github.com/samber/do"
)

type groupMining struct {
	container *do.Injector
}

func (gr *groupMining) allow(c echo.Context, userID int64) error {
	limiter, err := do.Invoke[interfaces.Limiter](gr.container)
	if err != nil {
		return err
	}

	return limiter.Allow(c.Request().Context(), services.LimitKeyUserMining(userID), redis_rate.PerMinute(services.MINING_RATE_LIMIT_PER_MINUTE))
}

func (gr *groupMining) Start(c echo.Context) error {
	serviceMining, err := do.Invoke[*services.ServiceMining](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	ctx := c.Request().Context()
	user, err := ResolveValidUser(ctx, gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	if err := gr.allow(c, user.ID); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.RateLimiting))
	}

	session, err := serviceMining.StartMining(ctx, user)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	return httpx.RestAbort(c, session, nil)
}

func (gr *groupMining) Stats(c echo.Context) error {
	serviceMining, err := do.Invoke[*services.ServiceMining](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	ctx := c.Request().Context()
	user, err := ResolveValidUser(ctx, gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	stats, err := serviceMining.GetMiningStats(ctx, user.ID)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	return httpx.RestAbort(c, stats, nil)
}

func (gr *groupMining) Claim(c echo.Context) error {
	serviceMining, err := do.Invoke[*services.ServiceMining](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	ctx := c.Request().Context()
	user, err := ResolveValidUser(ctx, gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	if err := gr.allow(c, user.ID); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.RateLimiting))
	}

	result, err := serviceMining.ClaimMining(ctx, user)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	return httpx.RestAbort(c, result, nil)
}

func (gr *groupMining) Claims(c echo.Context) error {
	serviceMining, err := do.Invoke[*services.ServiceMining](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	ctx := c.Request().Context()
	user, err := ResolveValidUser(ctx, gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	page, err := strconv.Atoi(c.QueryParam("page"))
	if err != nil || page < 0 {
		page = 0
	}

	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 20
	}

	claims, total, err := serviceMining.GetClaimHistory(ctx, user.ID, page, limit)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	result := struct {
		Claims []*models.MiningClaim `json:"claims"`
		Total  float64               `json:"total_claimed"`
	}{
		Claims: claims,
		Total:  total,
	}

	return httpx.RestAbort(c, result, nil)
}

func (gr *groupMining) RefreshRate(c echo.Context) error {
	serviceMining, err := do.Invoke[*services.ServiceMining](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	ctx := c.Request().Context()
	user, err := ResolveValidUser(ctx, gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	update, err := serviceMining.UpdateMiningRate(ctx, user.ID)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	return httpx.RestAbort(c, update, nil)
}
