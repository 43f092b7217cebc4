package domain

import "context"

// UserRepository defines access to the credit ledger.
type UserRepository interface {
	UpsertByUID(ctx context.Context, user *User) (*User, error)
	GetByUID(ctx context.Context, uid string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// Debit atomically decrements the balance and returns the remaining
	// credits. It fails with ErrInsufficientCredits when the live balance is
	// below amount, so two concurrent generations can never overdraw.
	Debit(ctx context.Context, email string, amount int) (int, error)
}

// AdRepository defines persistence for the job ledger.
type AdRepository interface {
	Create(ctx context.Context, ad *Ad) error
	GetByID(ctx context.Context, id string) (*Ad, error)
	ListByEmail(ctx context.Context, email string) ([]Ad, error)
	// MarkCompleted finalizes a pending ad. It is a no-op for terminal ads.
	MarkCompleted(ctx context.Context, id string, res AdResult) error
	// MarkFailed records the failure message on a pending ad.
	MarkFailed(ctx context.Context, id string, message string) error
	SetVideoStatus(ctx context.Context, id string, status VideoStatus, message string) error
	CompleteVideo(ctx context.Context, id string, videoURL string) error
}

// AdResult carries the artifacts persisted when an ad completes.
type AdResult struct {
	OriginalImageURL  string
	GeneratedImageURL string
	ImagePrompt       string
	VideoPrompt       string
}
