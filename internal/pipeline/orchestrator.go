// Package pipeline sequences the product-ad generation flow: admission
// control against the credit ledger, durable job reservation, input
// materialization, prompt/image/video synthesis, durable uploads and the
// single post-success debit.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"adforge/internal/domain"
	"adforge/internal/infra"
	"adforge/internal/ingest"
	imagegen "adforge/internal/providers/image"
	"adforge/internal/providers/prompt"
	videogen "adforge/internal/providers/video"
	"adforge/internal/storage"
)

const (
	originalsFolder = "/product_ads/originals/"
	generatedFolder = "/product_ads/generated/"
	videosFolder    = "/videos/"
)

// InputFetcher resolves remote image/video URLs into byte buffers.
type InputFetcher interface {
	FromURL(ctx context.Context, url string) (*ingest.Blob, error)
}

// Publisher receives a snapshot of the ad after every durable ledger write so
// subscribed clients observe state changes without polling.
type Publisher interface {
	PublishAd(ad domain.Ad)
}

// Deps are the injected collaborators. All external services are reached
// through these handles only, so tests substitute fakes freely.
type Deps struct {
	Ads     domain.AdRepository
	Users   domain.UserRepository
	Store   storage.Uploader
	Prompts prompt.Synthesizer
	Images  imagegen.Generator
	Videos  videogen.Generator
	Fetcher InputFetcher
	Events  Publisher
	Logger  infra.Logger
}

// Orchestrator owns every Ad transition. Nothing else writes the job ledger,
// and the credit ledger is only touched through the single debit step.
type Orchestrator struct {
	ads     domain.AdRepository
	users   domain.UserRepository
	store   storage.Uploader
	prompts prompt.Synthesizer
	images  imagegen.Generator
	videos  videogen.Generator
	fetcher InputFetcher
	events  Publisher
	logger  infra.Logger

	newID func() string
	now   func() time.Time
}

// SubmitInput is one image-generation request. ImageData carries an uploaded
// file; ImageURL is the remote alternative. AvatarURL is optional and switches
// prompt synthesis to avatar mode.
type SubmitInput struct {
	OwnerEmail    string
	Description   string
	RequestedSize string
	ImageData     []byte
	ImageMIME     string
	ImageURL      string
	AvatarURL     string
}

// SubmitResult is returned once the ad completed and credits were debited.
type SubmitResult struct {
	AdID              string
	OriginalImageURL  string
	GeneratedImageURL string
	Prompts           domain.AdPrompts
	CreditsRemaining  int
}

// VideoInput triggers the independent image-to-video sub-pipeline for a
// completed ad.
type VideoInput struct {
	AdID        string
	ImageURL    string
	VideoPrompt string
	OwnerUID    string
}

// VideoResult is returned once the video completed and credits were debited.
type VideoResult struct {
	VideoURL         string
	CreditsRemaining int
}

// New wires an Orchestrator from its dependencies.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		ads:     deps.Ads,
		users:   deps.Users,
		store:   deps.Store,
		prompts: deps.Prompts,
		images:  deps.Images,
		videos:  deps.Videos,
		fetcher: deps.Fetcher,
		events:  deps.Events,
		logger:  deps.Logger,
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

// Submit runs the image-generation pipeline. The pending Ad is written before
// any external call; from that point every failure transitions the Ad to
// failed before the error surfaces, and credits are only debited after all
// generation and uploads succeeded.
func (o *Orchestrator) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if err := validateSubmit(in); err != nil {
		return nil, err
	}

	user, err := o.users.GetByEmail(ctx, in.OwnerEmail)
	if err != nil {
		return nil, err
	}
	if !user.CanAfford(domain.ImageGenerationCost) {
		return nil, fmt.Errorf("%w: need at least %d credits to generate an ad", domain.ErrInsufficientCredits, domain.ImageGenerationCost)
	}

	if in.RequestedSize == "" {
		in.RequestedSize = "1024x1024"
	}

	ad := &domain.Ad{
		ID:            o.newID(),
		OwnerEmail:    in.OwnerEmail,
		Status:        domain.AdStatusPending,
		VideoStatus:   domain.VideoStatusAbsent,
		Description:   in.Description,
		RequestedSize: in.RequestedSize,
		CreatedAt:     o.now(),
		UpdatedAt:     o.now(),
	}
	if err := o.ads.Create(ctx, ad); err != nil {
		return nil, fmt.Errorf("reserve ad record: %w", err)
	}
	o.publish(ad)

	source, avatar, err := o.materializeInputs(ctx, in)
	if err != nil {
		return nil, o.fail(ctx, ad, err)
	}

	originalUpload, err := o.store.Upload(ctx, source.Data, source.MIME,
		fmt.Sprintf("product_%s_original.jpg", ad.ID), originalsFolder)
	if err != nil {
		return nil, o.fail(ctx, ad, err)
	}

	synthReq := prompt.SynthesisRequest{
		Description: in.Description,
		Image:       source.Data,
		ImageMIME:   source.MIME,
	}
	if avatar != nil {
		synthReq.Avatar = avatar.Data
		synthReq.AvatarMIME = avatar.MIME
	}
	prompts, err := o.prompts.Synthesize(ctx, synthReq)
	if err != nil {
		return nil, o.fail(ctx, ad, err)
	}

	genReq := imagegen.GenerateRequest{
		Prompt:    prompts.TextToImage,
		Image:     source.Data,
		ImageMIME: source.MIME,
	}
	if avatar != nil {
		genReq.Avatar = avatar.Data
		genReq.AvatarMIME = avatar.MIME
	}
	generated, err := o.images.Generate(ctx, genReq)
	if err != nil {
		return nil, o.fail(ctx, ad, err)
	}

	generatedUpload, err := o.store.Upload(ctx, generated, "image/jpeg",
		fmt.Sprintf("product_%s_generated.jpg", ad.ID), generatedFolder)
	if err != nil {
		return nil, o.fail(ctx, ad, err)
	}

	remaining, err := o.users.Debit(ctx, in.OwnerEmail, domain.ImageGenerationCost)
	if err != nil {
		return nil, o.fail(ctx, ad, err)
	}

	result := domain.AdResult{
		OriginalImageURL:  originalUpload.URL,
		GeneratedImageURL: generatedUpload.URL,
		ImagePrompt:       prompts.TextToImage,
		VideoPrompt:       prompts.ImageToVideo,
	}
	if err := o.ads.MarkCompleted(ctx, ad.ID, result); err != nil {
		return nil, o.fail(ctx, ad, fmt.Errorf("finalize ad record: %w", err))
	}

	completedAt := o.now()
	ad.Status = domain.AdStatusCompleted
	ad.OriginalImageURL = result.OriginalImageURL
	ad.GeneratedImageURL = result.GeneratedImageURL
	ad.ImagePrompt = result.ImagePrompt
	ad.VideoPrompt = result.VideoPrompt
	ad.CompletedAt = &completedAt
	ad.UpdatedAt = completedAt
	o.publish(ad)

	o.logger.Info().
		Str("ad_id", ad.ID).
		Str("owner", ad.OwnerEmail).
		Int("credits_remaining", remaining).
		Msg("pipeline: ad generation completed")

	return &SubmitResult{
		AdID:              ad.ID,
		OriginalImageURL:  result.OriginalImageURL,
		GeneratedImageURL: result.GeneratedImageURL,
		Prompts:           *prompts,
		CreditsRemaining:  remaining,
	}, nil
}

// GenerateVideo runs the post-hoc image-to-video sub-pipeline against an
// existing ad. The pending transition is written up front so the owner sees
// progress; any later failure moves videoStatus to failed and leaves credits
// untouched.
func (o *Orchestrator) GenerateVideo(ctx context.Context, in VideoInput) (*VideoResult, error) {
	if in.AdID == "" || in.ImageURL == "" || in.VideoPrompt == "" || in.OwnerUID == "" {
		return nil, fmt.Errorf("%w: adId, imageUrl, videoPrompt and uid are all required", domain.ErrMissingField)
	}

	user, err := o.users.GetByUID(ctx, in.OwnerUID)
	if err != nil {
		return nil, err
	}
	if !user.CanAfford(domain.VideoGenerationCost) {
		return nil, fmt.Errorf("%w: need at least %d credits to generate a video", domain.ErrInsufficientCredits, domain.VideoGenerationCost)
	}

	ad, err := o.ads.GetByID(ctx, in.AdID)
	if err != nil {
		return nil, err
	}

	if err := o.ads.SetVideoStatus(ctx, ad.ID, domain.VideoStatusPending, ""); err != nil {
		return nil, fmt.Errorf("mark video pending: %w", err)
	}
	ad.VideoStatus = domain.VideoStatusPending
	o.publish(ad)

	videoURL, err := o.videos.Generate(ctx, in.ImageURL, in.VideoPrompt)
	if err != nil {
		return nil, o.failVideo(ctx, ad, err)
	}

	blob, err := o.fetcher.FromURL(ctx, videoURL)
	if err != nil {
		return nil, o.failVideo(ctx, ad, err)
	}

	mime := blob.MIME
	if mime == "" || mime == "image/jpeg" {
		mime = "video/mp4"
	}
	upload, err := o.store.Upload(ctx, blob.Data, mime,
		fmt.Sprintf("video_%d_%s.mp4", o.now().UnixMilli(), in.OwnerUID), videosFolder)
	if err != nil {
		return nil, o.failVideo(ctx, ad, err)
	}

	if err := o.ads.CompleteVideo(ctx, ad.ID, upload.URL); err != nil {
		return nil, o.failVideo(ctx, ad, fmt.Errorf("finalize video record: %w", err))
	}
	ad.VideoStatus = domain.VideoStatusCompleted
	ad.VideoURL = upload.URL
	ad.UpdatedAt = o.now()
	o.publish(ad)

	remaining, err := o.users.Debit(ctx, ad.OwnerEmail, domain.VideoGenerationCost)
	if err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("ad_id", ad.ID).
		Str("owner", ad.OwnerEmail).
		Int("credits_remaining", remaining).
		Msg("pipeline: video generation completed")

	return &VideoResult{VideoURL: upload.URL, CreditsRemaining: remaining}, nil
}

func validateSubmit(in SubmitInput) error {
	if in.OwnerEmail == "" {
		return fmt.Errorf("%w: user email is required", domain.ErrValidation)
	}
	if in.Description == "" {
		return fmt.Errorf("%w: product description is required", domain.ErrValidation)
	}
	if len(in.ImageData) == 0 && in.ImageURL == "" {
		return fmt.Errorf("%w: provide either a file or an image url", domain.ErrValidation)
	}
	return nil
}

func (o *Orchestrator) materializeInputs(ctx context.Context, in SubmitInput) (source, avatar *ingest.Blob, err error) {
	if len(in.ImageData) > 0 {
		source = ingest.FromBytes(in.ImageData, in.ImageMIME)
	} else {
		source, err = o.fetcher.FromURL(ctx, in.ImageURL)
		if err != nil {
			return nil, nil, err
		}
	}
	if in.AvatarURL != "" {
		avatar, err = o.fetcher.FromURL(ctx, in.AvatarURL)
		if err != nil {
			return nil, nil, err
		}
	}
	return source, avatar, nil
}

// fail transitions the ad to failed before surfacing the error. The ledger
// write is best-effort: if it fails too, the original error still wins.
func (o *Orchestrator) fail(ctx context.Context, ad *domain.Ad, cause error) error {
	if err := o.ads.MarkFailed(ctx, ad.ID, cause.Error()); err != nil {
		o.logger.Error().Err(err).Str("ad_id", ad.ID).Msg("pipeline: failed to record ad failure")
	} else {
		ad.Status = domain.AdStatusFailed
		ad.ErrorMessage = cause.Error()
		ad.UpdatedAt = o.now()
		o.publish(ad)
	}
	return cause
}

func (o *Orchestrator) failVideo(ctx context.Context, ad *domain.Ad, cause error) error {
	if err := o.ads.SetVideoStatus(ctx, ad.ID, domain.VideoStatusFailed, cause.Error()); err != nil {
		o.logger.Error().Err(err).Str("ad_id", ad.ID).Msg("pipeline: failed to record video failure")
	} else {
		ad.VideoStatus = domain.VideoStatusFailed
		ad.ErrorMessage = cause.Error()
		ad.UpdatedAt = o.now()
		o.publish(ad)
	}
	return cause
}

func (o *Orchestrator) publish(ad *domain.Ad) {
	if o.events == nil {
		return
	}
	o.events.PublishAd(*ad)
}
