package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audience/internal/upload"
)

// memRepo is an in-memory Repository for tests.
type memRepo struct {
	mu      sync.Mutex
	uploads []Upload
	rows    [][]any
	batches int
	failAt  int // fail the n-th LoadRows call (1-based); 0 never fails
	closed  bool
}

func newMemRepo() *memRepo { return &memRepo{} }

func (m *memRepo) EnsureSchema(context.Context) error { return nil }

func (m *memRepo) SaveUpload(_ context.Context, u Upload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, u)
	return nil
}

func (m *memRepo) LoadRows(_ context.Context, _ []string, rows [][]any) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	if m.failAt == m.batches {
		return 0, errors.New("disk full")
	}
	for _, r := range rows {
		m.rows = append(m.rows, append([]any(nil), r...))
	}
	return int64(len(rows)), nil
}

func (m *memRepo) DeleteUpload(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	uploads := m.uploads[:0]
	for _, u := range m.uploads {
		if u.ID != id {
			uploads = append(uploads, u)
		}
	}
	m.uploads = uploads
	rows := m.rows[:0]
	for _, r := range m.rows {
		if r[0] != id {
			rows = append(rows, r)
		}
	}
	m.rows = rows
	return nil
}

func (m *memRepo) Close() { m.closed = true }

const customerHeader = "customerId,name,phone,email,age,city,country,occupation"

func validated(t *testing.T, header string, n int) upload.Outcome {
	t.Helper()
	var b strings.Builder
	b.WriteString(header + "\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "c%d,Name %d,555,u%d@example.com,30,Oslo,Norway,Pilot\n", i, i, i)
	}
	out, err := upload.Validate([]byte(b.String()), upload.Options{MaxRows: 1000})
	require.NoError(t, err)
	return out
}

func TestPersist(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	out := validated(t, customerHeader, 7)

	n, err := Persist(context.Background(), repo, out, PersistOptions{Filename: "crm.csv", BatchSize: 3, Job: "test"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, 3, repo.batches)

	require.Len(t, repo.uploads, 1)
	u := repo.uploads[0]
	assert.Equal(t, out.ID.String(), u.ID)
	assert.Equal(t, out.Fingerprint, u.Fingerprint)
	assert.Equal(t, "crm.csv", u.Filename)
	assert.Equal(t, 7, u.TotalRows)
	assert.True(t, u.HasAllRequired)
	assert.False(t, u.CreatedAt.IsZero())

	require.Len(t, repo.rows, 7)
	assert.Equal(t, out.ID.String(), repo.rows[0][0])
	assert.Equal(t, 1, repo.rows[0][1])
	assert.Equal(t, 7, repo.rows[6][1])

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(repo.rows[0][2].(string)), &payload))
	assert.Equal(t, "c0", payload["customerId"])
	assert.Equal(t, "Oslo", payload["city"])
}

func TestPersist_Incomplete(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	out, err := upload.Validate([]byte("name,product\nAnn,Shoes\n"), upload.Options{})
	require.NoError(t, err)

	_, err = Persist(context.Background(), repo, out, PersistOptions{})
	require.ErrorIs(t, err, ErrIncomplete)
	assert.Empty(t, repo.uploads)
}

func TestPersist_LoadFailure(t *testing.T) {
	t.Parallel()

	repo := &memRepo{failAt: 2}
	out := validated(t, customerHeader, 5)

	n, err := Persist(context.Background(), repo, out, PersistOptions{BatchSize: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Zero(t, n)
	assert.Empty(t, repo.uploads, "a failed save leaves no upload behind")
	assert.Empty(t, repo.rows, "a failed save leaves no rows behind")
}

func TestPersist_FailureKeepsOtherUploads(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	first := validated(t, customerHeader, 2)
	_, err := Persist(context.Background(), repo, first, PersistOptions{})
	require.NoError(t, err)

	repo.failAt = repo.batches + 1
	_, err = Persist(context.Background(), repo, validated(t, customerHeader, 3), PersistOptions{BatchSize: 1})
	require.Error(t, err)

	require.Len(t, repo.uploads, 1)
	assert.Equal(t, first.ID.String(), repo.uploads[0].ID)
	assert.Len(t, repo.rows, 2)
}
