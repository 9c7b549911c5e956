package domain

import (
	"context"
	"time"

	"rentbook/internal/database"
	"rentbook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ReservationStore is the persistence the admission path depends on.
type ReservationStore interface {
	GetListing(ctx context.Context, id string) (*models.Listing, error)
	ListReservations(ctx context.Context, listingID string) ([]models.Reservation, error)
	ListReservationsInRange(ctx context.Context, listingID string, from, to time.Time) ([]models.Reservation, error)
	GetReservation(ctx context.Context, id string) (*models.Reservation, error)
	GetReservationByIdempotencyKey(ctx context.Context, key string) (*models.Reservation, error)
	CreateReservationChecked(ctx context.Context, r *models.Reservation, recheck database.RecheckFunc) error
	DeleteReservation(ctx context.Context, id, requesterID string) error
}

// IdempotencyStore maps caller-supplied idempotency keys to reservation ids.
type IdempotencyStore interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Remember(ctx context.Context, key, reservationID string, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SyncQueue interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	PurgeCompletedSyncTasks(ctx context.Context, before time.Time) (int64, error)
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, reservation *models.Reservation) error
}

type SheetsWriter interface {
	UpsertReservation(ctx context.Context, reservation *models.Reservation) error
	DeleteReservation(ctx context.Context, reservationID string) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}
