package server

import (
	"ideaforge/internal/domain"
	"ideaforge/internal/engine"
)

// Request payloads

type CreateUserRequest struct {
	WalletAddress string  `json:"wallet_address"`
	Nickname      *string `json:"nickname,omitempty"`
}

type CreateIdeaRequest struct {
	Title  string `json:"title"`
	Target string `json:"target"`
	Why    string `json:"why"`
	What   string `json:"what"`
	How    string `json:"how"`
	Impact string `json:"impact"`
}

type UpdateIdeaRequest struct {
	Title  *string `json:"title,omitempty"`
	Target *string `json:"target,omitempty"`
	Why    *string `json:"why,omitempty"`
	What   *string `json:"what,omitempty"`
	How    *string `json:"how,omitempty"`
	Impact *string `json:"impact,omitempty"`
}

type CreateCommentRequest struct {
	Content string `json:"content"`
}

type CreateCollaborationRequest struct {
	Role    string  `json:"role,omitempty" enum:"contributor,co-owner,mentor"`
	Message *string `json:"message,omitempty"`
}

type CreateDelegationRequest struct {
	ToUserID string `json:"to_user_id"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	UserID string `json:"user_id"`
	Source string `json:"source"`
}

type LikeResponse struct {
	Idea  domain.Idea `json:"idea"`
	Liked bool        `json:"liked"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type UnreadCountResponse struct {
	Unread int `json:"unread"`
}

type MarkAllReadResponse struct {
	Marked int `json:"marked"`
}

type SweepResponse = engine.SweepResult
