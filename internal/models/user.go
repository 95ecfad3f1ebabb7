package models

import (
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel       `bun:"table:user"`
	ID                  int64     `bun:"id,pk" json:"id"`
	FirstName           string    `bun:"first_name" json:"first_name"`
	IsBot               bool      `bun:"is_bot" json:"-"`
	IsPremium           bool      `bun:"is_premium" json:"-"`
	LastName            string    `bun:"last_name" json:"last_name"`
	Username            string    `bun:"username" json:"username"`
	LanguageCode        string    `bun:"language_code" json:"language_code"`
	PhotoURL            string    `bun:"photo_url" json:"photo_url"`
	CreatedAt           time.Time `bun:"created_at,default:current_timestamp" json:"created_at"`
	UpdatedAt           time.Time `bun:"updated_at" json:"updated_at"`
	ReferredBy          *int64    `bun:"referred_by" json:"referred_by"`
	RefCode             *string   `bun:"ref_code" json:"ref_code"`
	TotalInvites        int64     `bun:"total_invites" json:"total_invites"`
	Points              float64   `bun:"points" json:"points"`
	MiningBalance       float64   `bun:"mining_balance" json:"mining_balance"`
	TotalMiningSessions int64     `bun:"total_mining_sessions" json:"total_mining_sessions"`

	IsNewUser       bool `bun:"-" json:"is_new_user"`
	ActiveReferrals int  `bun:"-" json:"active_referrals"`
}

// UserFromAuth only use in middleware
type UserFromAuth struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	IsBot        bool   `json:"is_bot"`
	IsPremium    bool   `json:"is_premium"`
	LastName     string `json:"last_name"`
	Username     string `json:"username"`
	LanguageCode string `json:"language_code"`
	PhotoURL     string `json:"photo_url"`
}

type Friend struct {
	ID        int64  `bun:"id" json:"id"`
	FirstName string `bun:"first_name" json:"first_name"`
	LastName  string `bun:"last_name" json:"last_name"`
	Username  string `bun:"username" json:"username"`
	IsMining  bool   `bun:"is_mining" json:"is_mining"`
}
