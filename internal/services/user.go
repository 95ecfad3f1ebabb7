package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/uptrace/bun"

	"minetap/internal/datastore"
	"minetap/internal/models"
	"minetap/internal/pkg/caching"
)

const MessageNewUser = `🎉 Great news! %s has just joined minetap.

Your mining rate goes up by 10%% for every invited friend who is actively mining. Check the "Frens" tab to see who is digging with you. ⛏️`

type ServiceUser struct {
	container          *do.Injector
	redisDB            redis.UniversalClient
	rs                 *redsync.Redsync
	postgresDB         *bun.DB
	readonlyPostgresDB *bun.DB
	cache              caching.Cache
	readonlyCache      caching.ReadOnlyCache

	bot *Bot
}

func NewServiceUser(container *do.Injector) (*ServiceUser, error) {
	redisDB, err := do.InvokeNamed[redis.UniversalClient](container, "redis-db")
	if err != nil {
		return nil, err
	}

	rs, err := do.Invoke[*redsync.Redsync](container)
	if err != nil {
		return nil, err
	}

	postgresDB, err := do.Invoke[*bun.DB](container)
	if err != nil {
		return nil, err
	}

	readonlyPostgresDB, err := do.InvokeNamed[*bun.DB](container, "db-readonly")
	if err != nil {
		return nil, err
	}

	cache, err := do.Invoke[caching.Cache](container)
	if err != nil {
		return nil, err
	}

	readonlyCache, err := do.Invoke[caching.ReadOnlyCache](container)
	if err != nil {
		return nil, err
	}

	bot, err := do.Invoke[*Bot](container)
	if err != nil {
		return nil, err
	}

	return &ServiceUser{container, redisDB, rs, postgresDB, readonlyPostgresDB, cache, readonlyCache, bot}, nil
}

func (service *ServiceUser) FindOrCreateUser(ctx context.Context, userAuth *models.UserFromAuth) (*models.User, error) {
	if userAuth == nil {
		return nil, errors.New("userAuth is nil")
	}

	user, _ := service.FindUserByID(ctx, userAuth.ID)
	if user != nil {
		// tokens minted from a previous visit carry no profile fields;
		// only init-data logins refresh the profile
		if userAuth.FirstName == "" && userAuth.LastName == "" && userAuth.PhotoURL == "" {
			return user, nil
		}
		if (user.Username != strings.ToLower(userAuth.Username)) ||
			(user.FirstName != userAuth.FirstName) ||
			(user.LastName != userAuth.LastName) ||
			(user.PhotoURL != userAuth.PhotoURL) {
			user.Username = strings.ToLower(userAuth.Username)
			user.FirstName = userAuth.FirstName
			user.LastName = userAuth.LastName
			user.PhotoURL = userAuth.PhotoURL
			//nolint:errcheck
			datastore.UpdateUserProfile(ctx, service.postgresDB, user)
			_ = service.cache.Delete(ctx, DBKeyUser(user.ID))
		}
		return user, nil
	}

	now := time.Now()
	newUser := &models.User{
		ID:           userAuth.ID,
		FirstName:    userAuth.FirstName,
		IsBot:        userAuth.IsBot,
		IsPremium:    userAuth.IsPremium,
		LastName:     userAuth.LastName,
		Username:     strings.ToLower(userAuth.Username),
		LanguageCode: userAuth.LanguageCode,
		PhotoURL:     userAuth.PhotoURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	log.Println("Create new user:", "user:", newUser.ID, "username:", newUser.Username)
	user, err := datastore.CreateUser(ctx, service.postgresDB, newUser)
	if err != nil {
		return nil, err
	}

	user.IsNewUser = true

	go func() {
		if err := service.bot.SendWelcomeMsg(user.ID); err != nil {
			log.Println(err)
		}
	}()

	return user, nil
}

func (service *ServiceUser) FindUserByID(ctx context.Context, userID int64) (*models.User, error) {
	callback := func() (*models.User, error) {
		return datastore.FindUserByID(ctx, service.readonlyPostgresDB, userID)
	}
	return caching.UseCacheWithRO(ctx, service.readonlyCache, service.cache, DBKeyUser(userID), CACHE_TTL_5_MINS, callback)
}

func (service *ServiceUser) AddReferral(ctx context.Context, user *models.User, referrer *models.User) error {
	if referrer == nil {
		return errors.New("referrer is nil")
	}

	if user.ID == referrer.ID {
		return errors.New("user cannot refer himself")
	}

	if user.ReferredBy != nil {
		return errors.New("user already has a referrer")
	}

	err := datastore.AddReferral(ctx, service.postgresDB, user.ID, referrer.ID)
	if err != nil {
		return err
	}

	username := fmt.Sprintf("@%s", user.Username)
	if user.Username == "" {
		username = strings.TrimSpace(fmt.Sprintf("%s %s", user.FirstName, user.LastName))
	}

	go func() {
		if referrer.ID < 100 {
			return
		}
		if err := service.bot.SendMsg(referrer.ID, fmt.Sprintf(MessageNewUser, username)); err != nil {
			log.Println(err)
		}
	}()

	//nolint:errcheck
	service.ClearUserCache(ctx, user.ID)
	//nolint:errcheck
	service.ClearUserCache(ctx, referrer.ID)

	log.Println("AddReferral updated:", "user:", user.ID, "username:", user.Username, "referrerID:", referrer.ID)

	return nil
}

func (service *ServiceUser) Me(ctx context.Context, user *models.User, refCode string) (*models.User, error) {
	if user == nil {
		return nil, errors.New("user not found")
	}

	callback := func() (*models.User, error) {
		me, err := datastore.FindUserByID(ctx, service.readonlyPostgresDB, user.ID)
		if err != nil {
			return me, err
		}

		if user.IsNewUser && refCode != "" {
			if me.ReferredBy != nil {
				log.Println("AddReferral abort: user already has referrer", "user:", me.ID, "refCode:", refCode)
				return me, nil
			}

			// refcode defaults to the referrer's user id
			referrer, err := service.GetUserByRefCode(ctx, refCode)
			if referrer == nil {
				log.Println("AddReferral abort: cannot resolve refcode", "user:", me.ID, "refCode:", refCode)
				return me, nil
			}

			err = service.AddReferral(ctx, me, referrer)
			if err != nil {
				log.Println("AddReferral error:", err, "user:", me.ID, "refCode:", refCode)
			}
		}

		return me, nil
	}

	me, err := caching.UseCacheWithRO(ctx, service.readonlyCache, service.cache, DBKeyMe(user.ID), CACHE_TTL_5_MINS, callback)
	if me != nil && user.IsNewUser {
		me.IsNewUser = user.IsNewUser
	}

	return me, err
}

func (service *ServiceUser) GetUserByRefCode(ctx context.Context, refCode string) (*models.User, error) {
	callback := func() (*models.User, error) {
		return datastore.GetUserByRefCode(ctx, service.readonlyPostgresDB, refCode)
	}

	return caching.UseCacheWithRO(ctx, service.readonlyCache, service.cache, DBKeyUserByRefCode(refCode), CACHE_TTL_5_MINS, callback)
}

func (service *ServiceUser) GetUserFriendListPaging(ctx context.Context, userID int64, page int, limit int) ([]*models.Friend, error) {
	callback := func() ([]*models.Friend, error) {
		offset := page * limit
		return datastore.GetUserFriendListPaging(ctx, service.readonlyPostgresDB, userID, limit, offset)
	}
	return caching.UseCacheWithRO(ctx, service.readonlyCache, service.cache, DBKeyUserFriendList(userID, page, limit), CACHE_TTL_1_MIN, callback)
}

func (service *ServiceUser) CountUserFriends(ctx context.Context, userID int64) (int, error) {
	callback := func() (int, error) {
		return datastore.CountInviteesByUserID(ctx, service.readonlyPostgresDB, userID)
	}

	return caching.UseCacheWithRO(ctx, service.readonlyCache, service.cache, DBKeyFriendCount(userID), CACHE_TTL_5_MINS, callback)
}

func (service *ServiceUser) ClearUserCache(ctx context.Context, userID int64) error {
	if err := service.cache.Delete(ctx, DBKeyMe(userID)); err != nil {
		log.Println(err)
	}

	if err := service.cache.Delete(ctx, DBKeyUser(userID)); err != nil {
		log.Println(err)
	}

	return nil
}
