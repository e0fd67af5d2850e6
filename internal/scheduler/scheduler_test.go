package scheduler

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs int
	err  error
}

func (j *countingJob) Run() error {
	j.runs++
	return j.err
}

func (j *countingJob) Name() string {
	if j.name == "" {
		return "counting"
	}
	return j.name
}

type panickingJob struct {
	once sync.Once
	ran  chan struct{}
}

func (j *panickingJob) Run() error {
	j.once.Do(func() { close(j.ran) })
	panic("index out of range")
}

func (j *panickingJob) Name() string {
	return "panicking"
}

// syncBuffer is written by cron goroutines while the test reads it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAddJob(t *testing.T) {
	s := New(zerolog.Nop())

	require.NoError(t, s.AddJob("@every 1h", &countingJob{name: "refresh_prices"}))
	require.NoError(t, s.AddJob("0 0 3 * * *", &countingJob{name: "purge_cache"}))
	assert.Error(t, s.AddJob("not a schedule", &countingJob{}))

	entries := s.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "purge_cache", entries[0].Job)
	assert.Equal(t, "0 0 3 * * *", entries[0].Schedule)
	assert.Equal(t, "refresh_prices", entries[1].Job)
	assert.True(t, entries[1].Next.IsZero())
}

func TestEntries_NextRunAfterStart(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob("@every 1h", &countingJob{}))

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		entries := s.Entries()
		return len(entries) == 1 && !entries[0].Next.IsZero()
	}, time.Second, 10*time.Millisecond)
	assert.WithinDuration(t, time.Now().Add(time.Hour), s.Entries()[0].Next, time.Minute)
}

func TestRunNow(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{err: errors.New("boom")}

	assert.EqualError(t, s.RunNow(job), "boom")
	assert.Equal(t, 1, job.runs)
}

func TestPanickingJobIsRecovered(t *testing.T) {
	var buf syncBuffer
	s := New(zerolog.New(&buf))
	job := &panickingJob{ran: make(chan struct{})}
	require.NoError(t, s.AddJob("* * * * * *", job))

	s.Start()
	select {
	case <-job.ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
	s.Stop()

	assert.Contains(t, buf.String(), "index out of range")
	assert.Contains(t, buf.String(), `"level":"error"`)
}
