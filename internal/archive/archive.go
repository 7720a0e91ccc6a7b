// Package archive pushes converted outputs to S3-compatible storage (R2)
// in the background. Archiving is a convenience for paying users; it is
// queued, retried with backoff, and never fails a conversion.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	conf "github.com/Lakyn80/covertor-webp-lukiora/internal/config"
)

var ErrQueueFull = errors.New("archive queue is full")

type uploadReq struct {
	ctx     context.Context
	key     string
	payload []byte
}

// Uploader owns an S3 client, a bounded queue and a worker pool that
// drains it with retry.
type Uploader struct {
	accountID string
	bucket    string
	region    string // "auto" for R2
	accessKey string
	secretKey string

	workers        int
	queueSize      int
	maxRetries     int
	retryBaseDelay time.Duration

	queue chan uploadReq
	wg    sync.WaitGroup

	client   *s3.Client
	uploader *manager.Uploader
}

func NewUploader(cfg *conf.ArchiveConfig) (*Uploader, error) {
	u := &Uploader{
		accountID:      cfg.AccountID,
		bucket:         cfg.BucketName,
		region:         "auto",
		accessKey:      cfg.AccessKeyID,
		secretKey:      cfg.SecretKey,
		workers:        8,
		queueSize:      1000,
		maxRetries:     3,
		retryBaseDelay: 300 * time.Millisecond,
	}
	if err := u.run(); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *Uploader) run() error {
	cfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			u.accessKey, u.secretKey, "",
		)),
		awsconfig.WithRegion(u.region),
	)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	u.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", u.accountID))
		o.UsePathStyle = true
	})
	u.uploader = manager.NewUploader(u.client)

	u.queue = make(chan uploadReq, u.queueSize)
	for i := 0; i < u.workers; i++ {
		u.wg.Add(1)
		go u.worker()
	}

	log.Info().Int("workers", u.workers).Msg("archive uploader started")
	return nil
}

// Close waits for all queued uploads to finish.
func (u *Uploader) Close() {
	close(u.queue)
	u.wg.Wait()
}

// Enqueue puts a converted output on the queue without blocking. A full
// queue returns ErrQueueFull immediately; the caller logs and moves on.
func (u *Uploader) Enqueue(ctx context.Context, key string, payload []byte) error {
	req := uploadReq{ctx: context.WithoutCancel(ctx), key: key, payload: payload}
	select {
	case u.queue <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

func (u *Uploader) worker() {
	defer u.wg.Done()
	for req := range u.queue {
		attempt := 0
		for {
			attempt++
			_, err := u.uploader.Upload(req.ctx, &s3.PutObjectInput{
				Bucket:      aws.String(u.bucket),
				Key:         aws.String(req.key),
				Body:        bytes.NewReader(req.payload),
				ContentType: aws.String("image/webp"),
			})
			if err == nil {
				break
			}
			if attempt > u.maxRetries {
				log.Warn().Err(err).Str("key", req.key).Msg("archive upload gave up")
				break
			}

			timer := time.NewTimer(u.backoffDelay(attempt))
			select {
			case <-timer.C:
			case <-req.ctx.Done():
				timer.Stop()
			}
			if req.ctx.Err() != nil {
				break
			}
		}
	}
}

// backoffDelay doubles per attempt with up to 20% jitter so retries from
// concurrent workers spread out.
func (u *Uploader) backoffDelay(attempt int) time.Duration {
	delay := u.retryBaseDelay << (attempt - 1)
	jitter := time.Duration(rand.Int64N(int64(delay)/5 + 1))
	return delay + jitter
}
