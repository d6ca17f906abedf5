package dto

import (
	"github.com/playletworks/drama-api/model"
)

type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8,max=72"`
	DisplayName string `json:"display_name" binding:"max=64"`
	Tier        string `json:"tier" binding:"omitempty,oneof=FREE PAY_PER_USE PROFESSIONAL ENTERPRISE"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token  string        `json:"token"`
	Tenant *model.Tenant `json:"tenant"`
}
