package ports

import (
	"context"

	"github.com/ghalamif/TrailSync/internal/domain"
)

// RemoteStore is the backend that owns sessions and receives synced points.
type RemoteStore interface {
	StartSession(ctx context.Context, start *domain.Position) (string, error)
	StopSession(ctx context.Context, sessionID string) error
	UploadBatch(ctx context.Context, sessionID string, points []domain.DataPoint) ([]domain.ClassifiedPoint, error)
	ListSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error)
	SessionPoints(ctx context.Context, sessionID string) ([]domain.DataPoint, error)
	Name() string
}

// AuthProvider exposes the identity collaborator's current credentials.
type AuthProvider interface {
	Token() string
	UserID() string
}
