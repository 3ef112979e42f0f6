package queue

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/sirupsen/logrus"

	"firmadoc/internal/domain"
)

const (
	jobsTopic   = "firmadoc.jobs"
	poisonTopic = "firmadoc.jobs.poison"
)

// Handler processes a single job. Returning an error triggers a retry;
// after the retry budget is spent the message moves to the poison topic.
type Handler func(ctx context.Context, job domain.Job) error

// Queue is an in-process job queue. A single subscriber consumes the
// jobs topic, so jobs execute one at a time in enqueue order.
type Queue struct {
	pubSub *gochannel.GoChannel
	router *message.Router
	log    *logrus.Entry

	mu       sync.RWMutex
	handlers map[domain.JobKind]Handler
	onPoison Handler
}

func NewQueue(log *logrus.Entry, maxRetries int, backoff time.Duration) (*Queue, error) {
	wmLogger := newRouterLogger(log)

	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
		Persistent:          false,
	}, wmLogger)

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("could not create job router: %w", err)
	}

	poisonMiddleware, err := middleware.PoisonQueue(pubSub, poisonTopic)
	if err != nil {
		return nil, fmt.Errorf("could not create poison queue: %w", err)
	}

	router.AddMiddleware(middleware.Recoverer)
	router.AddMiddleware(poisonMiddleware)
	router.AddMiddleware(middleware.Retry{
		MaxRetries:      maxRetries,
		InitialInterval: backoff,
		MaxInterval:     backoff * 8,
		Multiplier:      2,
		Logger:          wmLogger,
	}.Middleware)

	return &Queue{
		pubSub:   pubSub,
		router:   router,
		log:      log,
		handlers: map[domain.JobKind]Handler{},
	}, nil
}

// RegisterWorker binds a handler to a job kind. Must be called before Run.
func (q *Queue) RegisterWorker(kind domain.JobKind, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = handler
}

// SetPoisonHandler receives jobs that have exhausted their retry budget.
// Must be called before Run.
func (q *Queue) SetPoisonHandler(handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onPoison = handler
}

// Enqueue publishes the job and returns its id. The job id is assigned
// here when the caller left it empty.
func (q *Queue) Enqueue(ctx context.Context, job domain.Job) (string, error) {
	if job.JobID == "" {
		job.JobID = newJobID()
	}
	job.Status = domain.JobQueued
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("could not encode job: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("job_id", job.JobID)
	msg.Metadata.Set("kind", string(job.Kind))
	msg.Metadata.Set("contract_id", job.ContractID)

	if err := q.pubSub.Publish(jobsTopic, msg); err != nil {
		return "", fmt.Errorf("could not publish job: %w", err)
	}

	q.log.WithFields(logrus.Fields{
		"job_id":      job.JobID,
		"kind":        job.Kind,
		"contract_id": job.ContractID,
	}).Debug("job enqueued")

	return job.JobID, nil
}

// Run wires the handlers into the router and blocks until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	q.router.AddNoPublisherHandler(
		"jobs_worker",
		jobsTopic,
		q.pubSub,
		q.handleMessage,
	)
	q.router.AddNoPublisherHandler(
		"jobs_poison_watcher",
		poisonTopic,
		q.pubSub,
		q.handlePoison,
	)
	return q.router.Run(ctx)
}

// RunAsync starts the router in the background and returns once it is
// consuming messages.
func (q *Queue) RunAsync(ctx context.Context) {
	go func() {
		if err := q.Run(ctx); err != nil {
			q.log.WithError(err).Error("job router stopped")
		}
	}()
	<-q.router.Running()
}

func (q *Queue) Close() error {
	if err := q.router.Close(); err != nil {
		return err
	}
	return q.pubSub.Close()
}

func (q *Queue) handleMessage(msg *message.Message) error {
	job, err := decodeJob(msg)
	if err != nil {
		// A payload that cannot decode will never succeed; ack it.
		q.log.WithError(err).WithField("message_uuid", msg.UUID).Error("discarding undecodable job")
		return nil
	}

	q.mu.RLock()
	handler, ok := q.handlers[job.Kind]
	q.mu.RUnlock()
	if !ok {
		q.log.WithField("kind", job.Kind).Error("no worker registered for job kind")
		return nil
	}

	job.Status = domain.JobRunning
	job.Attempts++

	if err := handler(msg.Context(), job); err != nil {
		q.log.WithError(err).WithFields(logrus.Fields{
			"job_id":      job.JobID,
			"kind":        job.Kind,
			"contract_id": job.ContractID,
		}).Warn("job handler failed")
		return err
	}
	return nil
}

func (q *Queue) handlePoison(msg *message.Message) error {
	job, err := decodeJob(msg)
	if err != nil {
		q.log.WithError(err).WithField("message_uuid", msg.UUID).Error("undecodable poisoned job")
		return nil
	}
	job.Status = domain.JobFailed

	q.log.WithFields(logrus.Fields{
		"job_id":      job.JobID,
		"kind":        job.Kind,
		"contract_id": job.ContractID,
		"reason":      msg.Metadata.Get(middleware.ReasonForPoisonedKey),
	}).Error("job moved to poison queue")

	q.mu.RLock()
	onPoison := q.onPoison
	q.mu.RUnlock()
	if onPoison != nil {
		if err := onPoison(msg.Context(), job); err != nil {
			q.log.WithError(err).WithField("job_id", job.JobID).Error("poison handler failed")
		}
	}
	return nil
}

func decodeJob(msg *message.Message) (domain.Job, error) {
	var job domain.Job
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		return domain.Job{}, fmt.Errorf("could not decode job payload: %w", err)
	}
	return job, nil
}

func newJobID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	buf := make([]byte, 36)
	hex.Encode(buf, b[:4])
	buf[8] = '-'
	hex.Encode(buf[9:13], b[4:6])
	buf[13] = '-'
	hex.Encode(buf[14:18], b[6:8])
	buf[18] = '-'
	hex.Encode(buf[19:23], b[8:10])
	buf[23] = '-'
	hex.Encode(buf[24:], b[10:])
	return string(buf)
}
