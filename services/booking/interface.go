package booking

import (
	"context"

	"tailortalk/models"
)

// Orchestrator drives booking conversations turn by turn.
type Orchestrator interface {
	StartSession(ctx context.Context) (string, error)
	HandleTurn(ctx context.Context, sessionID, text string) (*models.TurnResult, error)
	Session(ctx context.Context, sessionID string) (*models.SessionView, error)
	Cancel(ctx context.Context, sessionID string) (*models.TurnResult, error)
}
