package handler

import (
	"strconv"

	"minetap/internal/models"
	"minetap/internal/services"

	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo/v4"
	"github.com/samber/do"
)

type groupUser struct {
	container *do.Injector
}

func (gr *groupUser) Me(c echo.Context) error {
	serviceUser, err := do.Invoke[*services.ServiceUser](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	ctx := c.Request().Context()
	user, err := ResolveValidUser(ctx, gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	me, err := serviceUser.Me(ctx, user, c.QueryParam("ref"))
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	authentication, err := do.Invoke[*services.Authentication](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	token, err := authentication.CreateToken(me)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	return httpx.RestAbort(c, map[string]interface{}{
		"token": token,
		"user":  me,
	}, nil)
}

func (gr *groupUser) GetFriendList(c echo.Context) error {
	serviceUser, err := do.Invoke[*services.ServiceUser](gr.container)
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

	friends, err := serviceUser.GetUserFriendListPaging(ctx, user.ID, page, limit)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	count, err := serviceUser.CountUserFriends(ctx, user.ID)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	result := struct {
		Friends []*models.Friend `json:"friends"`
		Total   int              `json:"total"`
	}{
		Friends: friends,
		Total:   count,
	}

	return httpx.RestAbort(c, result, nil)
}
