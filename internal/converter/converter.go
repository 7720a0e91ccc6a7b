// Package converter orchestrates one interactive conversion request:
// quota check, admission, transcode, commit. The quota charge happens only
// after a confirmed success, and the admission permit is released on every
// exit path.
package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Lakyn80/covertor-webp-lukiora/internal/admission"
	"github.com/Lakyn80/covertor-webp-lukiora/internal/quota"
	"github.com/Lakyn80/covertor-webp-lukiora/internal/transcoder"
)

// ErrEmptyPayload marks a request without an image; callers reject it
// before any quota or admission work.
var ErrEmptyPayload = errors.New("empty image payload")

// Archiver receives converted outputs for asynchronous storage. Optional.
type Archiver interface {
	Enqueue(ctx context.Context, key string, payload []byte) error
}

type Request struct {
	Caller   quota.Caller
	Filename string // original client filename, untrusted
	Payload  []byte
	Quality  int // 0 means the configured default
	MaxWidth int // 0 means no bound
}

type Result struct {
	Data        []byte
	Filename    string // suggested download name, source stem + ".webp"
	ContentType string
	Elapsed     time.Duration
}

type Service struct {
	ledger    *quota.Ledger
	gate      *admission.Gate
	archive   Archiver
	quality   int // default quality when the request carries none
	pngOpaque int // lossless effort hint for opaque PNG sources
}

func New(ledger *quota.Ledger, gate *admission.Gate, archive Archiver, defaultQuality, pngOpaqueQuality int) *Service {
	if defaultQuality <= 0 {
		defaultQuality = transcoder.DefaultQuality
	}
	return &Service{
		ledger:    ledger,
		gate:      gate,
		archive:   archive,
		quality:   defaultQuality,
		pngOpaque: pngOpaqueQuality,
	}
}

func (s *Service) Convert(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if len(req.Payload) == 0 {
		return nil, ErrEmptyPayload
	}

	// Fail fast: a quota-rejected request must not occupy a worker slot.
	if err := s.ledger.Check(ctx, req.Caller); err != nil {
		return nil, err
	}

	permit, err := s.gate.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer permit.Release()

	filename := sanitizeFilename(req.Filename)
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	outName := stem + ".webp"

	tmpDir, err := os.MkdirTemp("", "webpify-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	inPath := filepath.Join(tmpDir, filename)
	outPath := filepath.Join(tmpDir, outName)
	if err := os.WriteFile(inPath, req.Payload, 0o600); err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}

	quality := req.Quality
	if quality == 0 {
		quality = s.quality
	}

	if err := transcoder.Transcode(inPath, outPath, transcoder.Options{
		Quality:          quality,
		MaxWidth:         req.MaxWidth,
		PNGOpaqueQuality: s.pngOpaque,
	}); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, &transcoder.EncodeError{Path: outPath, Err: err}
	}

	// Charge only now, with the output in hand.
	s.ledger.Commit(ctx, req.Caller)

	if s.archive != nil {
		if err := s.archive.Enqueue(ctx, outName, data); err != nil {
			log.Warn().Err(err).Str("key", outName).Msg("archive enqueue failed")
		}
	}

	elapsed := time.Since(start)
	log.Info().
		Str("caller", req.Caller.Tag()).
		Dur("elapsed", elapsed).
		Int("bytes", len(data)).
		Msg("conversion finished")

	return &Result{
		Data:        data,
		Filename:    outName,
		ContentType: "image/webp",
		Elapsed:     elapsed,
	}, nil
}

// sanitizeFilename reduces an untrusted client filename to a safe base name.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "/" {
		return "uploaded"
	}
	return name
}
