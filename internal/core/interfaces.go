package core

//go:generate go run go.uber.org/mock/mockgen -source=interfaces.go -destination=../mocks/mock_meeting_api.go -package=mocks

import (
	"context"

	"github.com/dkeye/meetlink/internal/domain"
)

// MeetingAPI is the REST backend used around the live connection.
type MeetingAPI interface {
	// Participants returns the current participant records of room.
	Participants(ctx context.Context, room domain.RoomID) ([]domain.Participant, error)
	// Leave acknowledges that the caller left room.
	Leave(ctx context.Context, room domain.RoomID) error
}
