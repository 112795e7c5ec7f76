package progress

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/corvid-labs/grackle/pkg/log"
)

const sampleEvery = 100

// Pusher delivers one serialized progress message to a remote queue
type Pusher interface {
	Push(ctx context.Context, payload []byte) error
}

// RedisPusher pushes messages onto a Redis list
type RedisPusher struct {
	client *redis.Client
	key    string
}

// NewRedisPusher creates a pusher targeting the list key on the given
// Redis endpoint
func NewRedisPusher(addr, key string) *RedisPusher {
	return &RedisPusher{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		key:    key,
	}
}

func (p *RedisPusher) Push(ctx context.Context, payload []byte) error {
	return p.client.LPush(ctx, p.key, payload).Err()
}

// Close releases the underlying Redis connection pool
func (p *RedisPusher) Close() error {
	return p.client.Close()
}

// Remote emits progress messages to a queue: lifecycle markers immediately,
// PROGRESS samples every 100 items with the rate since the last sample.
// Delivery failures are logged and dropped; progress never stalls the run.
type Remote struct {
	pusher Pusher
	ctx    context.Context
	now    func() time.Time
	logger zerolog.Logger

	adID       int64
	domainName string
	count      int64
	lastCount  int64
	lastSample time.Time
}

// NewRemote creates a queue observer delivering through pusher
func NewRemote(ctx context.Context, pusher Pusher) *Remote {
	return &Remote{
		pusher: pusher,
		ctx:    ctx,
		now:    time.Now,
		logger: log.WithComponent("progress"),
	}
}

func (r *Remote) send(msg Message) {
	msg.Type = "LDAP"
	msg.ADID = r.adID
	msg.DomainName = r.domainName
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := r.pusher.Push(r.ctx, payload); err != nil {
		r.logger.Warn().Err(err).Msg("failed to push progress message")
	}
}

func (r *Remote) Started(adID int64, domainName string) {
	r.adID = adID
	r.domainName = domainName
	r.lastSample = r.now()
	r.send(Message{MsgType: MsgStarted})
}

func (r *Remote) Item(snap Snapshot) {
	r.count++
	if r.count%sampleEvery != 0 {
		return
	}
	now := r.now()
	elapsed := now.Sub(r.lastSample).Seconds()
	speed := 0.0
	if elapsed > 0 {
		speed = float64(r.count-r.lastCount) / elapsed
	}
	r.lastCount = r.count
	r.lastSample = now
	r.send(Message{
		MsgType:       MsgProgress,
		Finished:      snap.Finished,
		Running:       snap.Running,
		TotalFinished: r.count,
		Speed:         formatSpeed(speed),
	})
}

func (r *Remote) Finished() {
	r.send(Message{MsgType: MsgFinished})
}

func (r *Remote) Aborted() {
	r.send(Message{MsgType: MsgAborted})
}
