package dto

import (
	"library-api/internal/pkg/query"
)

// ApiErrors is the body of every 4xx/5xx response.
type ApiErrors struct {
	Errors []string `json:"errors"`
}

func NewApiErrors(messages ...string) ApiErrors {
	if messages == nil {
		messages = []string{}
	}
	return ApiErrors{Errors: messages}
}

type PageResponse[T any] struct {
	Content       []T   `json:"content"`
	TotalElements int64 `json:"totalElements"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalPages    int   `json:"totalPages"`
}

func NewPageResponse[S, T any](p query.Page[S], convert func(S) T) PageResponse[T] {
	mapped := query.Map(p, convert)
	return PageResponse[T]{
		Content:       mapped.Items,
		TotalElements: mapped.Total,
		Page:          mapped.Index,
		Size:          mapped.Size,
		TotalPages:    mapped.TotalPages(),
	}
}

type CreatedResponse struct {
	ID int64 `json:"id"`
}

type TokenRequest struct {
	Username string `json:"username"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}
