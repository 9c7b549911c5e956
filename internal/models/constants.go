package models

const (
	// MinHourlyDuration минимальная длительность почасовой брони в часах
	MinHourlyDuration = 3

	// MaxHourlyDuration длительность, после которой бронь считается посуточной
	MaxHourlyDuration = 8

	// CleaningBufferHours уборка после каждой почасовой брони
	CleaningBufferHours = 1

	// LatestEndHour час, позже которого почасовая бронь не может заканчиваться
	LatestEndHour = 23

	// LateCutoffHour после этого часа почасовая бронь тарифицируется как сутки
	LateCutoffHour = 22

	// BusinessStartHour и BusinessEndHour ограничивают выбор времени начала
	BusinessStartHour = 9
	BusinessEndHour   = 22
)

const (
	MultiNightPremium = 1.1
	LateCheckoutRate  = 0.2
	HourlyMarkup      = 1.5
)

const (
	// IdempotencyTTL время жизни ключа идемпотентности в секундах
	IdempotencyTTL = 24 * 60 * 60

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 1000

	// DefaultCalendarDays количество дней в календаре листинга по умолчанию
	DefaultCalendarDays = 60
)

const (
	SyncStatusPending   = "pending"
	SyncStatusRetry     = "retry"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)
