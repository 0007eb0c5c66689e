package capability

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Image generates a picture and stores it as JPEG.
type Image struct {
	gen   ImageGenerator
	fetch Fetcher
	saver
}

// NewImage creates the image handler.
func NewImage(gen ImageGenerator, fetch Fetcher, store ArtifactStore, now func() time.Time) *Image {
	return &Image{gen: gen, fetch: fetch, saver: newSaver(store, now)}
}

func (h *Image) Handle(ctx context.Context, req Request) (Result, error) {
	payload, err := h.gen.GenerateImage(ctx, req.Prompt)
	if err != nil {
		return Result{}, err
	}
	data, err := resolvePayload(ctx, h.fetch, payload)
	if err != nil {
		return Result{}, err
	}

	name := Filename(req.Prompt, "image", "jpeg", h.now())
	res, err := h.save(ctx, req.Slug, name, data)
	if err != nil {
		return Result{}, err
	}
	res.Units = 1
	log.Info().Str("slug", req.Slug).Str("file", res.Artifact).Int("bytes", len(data)).Msg("Image stored")
	return res, nil
}

// Video generates a short clip and stores it as MP4.
type Video struct {
	gen   VideoGenerator
	fetch Fetcher
	saver
}

// NewVideo creates the video handler.
func NewVideo(gen VideoGenerator, fetch Fetcher, store ArtifactStore, now func() time.Time) *Video {
	return &Video{gen: gen, fetch: fetch, saver: newSaver(store, now)}
}

func (h *Video) Handle(ctx context.Context, req Request) (Result, error) {
	payload, err := h.gen.GenerateVideo(ctx, req.Prompt)
	if err != nil {
		return Result{}, err
	}
	data, err := resolvePayload(ctx, h.fetch, payload)
	if err != nil {
		return Result{}, err
	}

	name := Filename(req.Prompt, "video", "mp4", h.now())
	res, err := h.save(ctx, req.Slug, name, data)
	if err != nil {
		return Result{}, err
	}
	res.Units = 1
	log.Info().Str("slug", req.Slug).Str("file", res.Artifact).Int("bytes", len(data)).Msg("Video stored")
	return res, nil
}
