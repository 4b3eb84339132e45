package command

import (
	"context"
)

type CredentialsPlanner interface {
	EnsureCredentials(ctx context.Context, purchaseID string) (int, error)
}

type Handler struct {
	planner CredentialsPlanner
}

func NewHandler(planner CredentialsPlanner) Handler {
	if planner == nil {
		panic("missing planner")
	}

	return Handler{
		planner: planner,
	}
}
