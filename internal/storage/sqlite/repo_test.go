package sqlite

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audience/internal/storage"
	"audience/internal/upload"
)

func openMem(t *testing.T) *Repository {
	t.Helper()
	r, err := NewRepository(context.Background(), Config{DSN: "file::memory:"})
	require.NoError(t, err)
	t.Cleanup(r.Close)
	require.NoError(t, r.EnsureSchema(context.Background()))
	return r
}

func TestNewRepository_EmptyDSN(t *testing.T) {
	t.Parallel()

	_, err := NewRepository(context.Background(), Config{})
	assert.Error(t, err)
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	t.Parallel()

	r := openMem(t)
	assert.NoError(t, r.EnsureSchema(context.Background()))
}

func TestSaveUploadAndLoadRows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := openMem(t)

	require.NoError(t, r.SaveUpload(ctx, storage.Upload{
		ID:             "u-1",
		Fingerprint:    "abc",
		Filename:       "crm.csv",
		TotalRows:      2,
		HasAllRequired: true,
		CreatedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}))

	n, err := r.LoadRows(ctx, storage.RowColumns, [][]any{
		{"u-1", 1, `{"name":"Ann"}`},
		{"u-1", 2, `{"name":"Bob"}`},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var (
		count   int
		payload string
	)
	require.NoError(t, r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM upload_rows WHERE upload_id = ?`, "u-1").Scan(&count))
	assert.Equal(t, 2, count)
	require.NoError(t, r.db.QueryRowContext(ctx, `SELECT payload FROM upload_rows WHERE row_num = 2`).Scan(&payload))
	assert.JSONEq(t, `{"name":"Bob"}`, payload)
}

func TestLoadRows_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := openMem(t)

	_, err := r.LoadRows(ctx, nil, [][]any{{1}})
	assert.Error(t, err)

	n, err := r.LoadRows(ctx, storage.RowColumns, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = r.LoadRows(ctx, storage.RowColumns, [][]any{{"u", 1}})
	assert.ErrorContains(t, err, "row length")
}

// TestPersist_EndToEnd validates a file and stores it through the registry.
func TestPersist_EndToEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)
	defer repo.Close()
	require.NoError(t, repo.EnsureSchema(ctx))

	out, err := upload.Validate([]byte(
		"CustomerId,Name,Phone,Email,Age,City,Country,Occupation\n"+
			"1,<b>Ann</b>,555,a@x,30,Oslo,Norway,Pilot\n"+
			"2,Bob,556,b@x,41,Bergen,Norway,Chef\n",
	), upload.Options{})
	require.NoError(t, err)

	n, err := storage.Persist(ctx, repo, out, storage.PersistOptions{Filename: "crm.csv", BatchSize: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	db := repo.(*Repository).db
	var payload string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT payload FROM upload_rows WHERE upload_id = ? AND row_num = 1`, out.ID.String()).Scan(&payload))
	assert.JSONEq(t, `{"customerId":"1","name":"Ann","phone":"555","email":"a@x","age":"30","city":"Oslo","country":"Norway","occupation":"Pilot"}`, payload)

	var total int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT total_rows FROM uploads WHERE id = ?`, out.ID.String()).Scan(&total))
	assert.Equal(t, 2, total)
}

func TestDeleteUpload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := openMem(t)
	for _, id := range []string{"keep", "drop"} {
		require.NoError(t, r.SaveUpload(ctx, storage.Upload{ID: id, Fingerprint: "f", CreatedAt: time.Now().UTC()}))
		_, err := r.LoadRows(ctx, storage.RowColumns, [][]any{{id, 1, `{}`}, {id, 2, `{}`}})
		require.NoError(t, err)
	}

	require.NoError(t, r.DeleteUpload(ctx, "drop"))
	require.NoError(t, r.DeleteUpload(ctx, "unknown"))

	var uploads, rows int
	require.NoError(t, r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM uploads`).Scan(&uploads))
	require.NoError(t, r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM upload_rows WHERE upload_id = 'keep'`).Scan(&rows))
	assert.Equal(t, 1, uploads)
	assert.Equal(t, 2, rows)
}

/*
TestPersist_RollsBackOnConflict makes the second batch hit a primary-key
conflict. The rows of the first batch and the upload row must not survive.
*/
func TestPersist_RollsBackOnConflict(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := openMem(t)

	var b strings.Builder
	b.WriteString("CustomerId,Name,Phone,Email,Age,City,Country,Occupation\n")
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&b, "%d,n%d,p,e,30,c,k,o\n", i, i)
	}
	out, err := upload.Validate([]byte(b.String()), upload.Options{})
	require.NoError(t, err)

	// row 3 already exists, so the batch holding rows 3 and 4 fails.
	_, err = r.LoadRows(ctx, storage.RowColumns, [][]any{{out.ID.String(), 3, `{}`}})
	require.NoError(t, err)

	n, err := storage.Persist(ctx, r, out, storage.PersistOptions{BatchSize: 2})
	require.Error(t, err)
	assert.Zero(t, n)

	var uploads, rows int
	require.NoError(t, r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM uploads`).Scan(&uploads))
	require.NoError(t, r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM upload_rows`).Scan(&rows))
	assert.Zero(t, uploads)
	assert.Zero(t, rows)
}

func TestQuoteIdent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `"upload_rows"`, quoteIdent("upload_rows"))
	assert.Equal(t, `"main"."rows"`, quoteIdent("main.rows"))
	assert.Equal(t, `"we""ird"`, quoteIdent(`we"ird`))
}
