package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const unlockScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// PatientLock serializes pipeline runs per patient across service instances.
// The token guards against releasing a lock that expired and was re-acquired
// by another run.
type PatientLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPatientLock(client *redis.Client, ttl time.Duration) *PatientLock {
	return &PatientLock{client: client, ttl: ttl}
}

// Acquire takes the per-patient lock. It does not block: a held lock returns
// ok=false and the caller re-enqueues or skips.
func (l *PatientLock) Acquire(ctx context.Context, patientID string) (release func(), ok bool, err error) {
	token := uuid.NewString()
	key := "chronica:pipeline:lock:" + patientID

	acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, nil
	}

	release = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		l.client.Eval(ctx, unlockScript, []string{key}, token)
	}
	return release, true, nil
}
