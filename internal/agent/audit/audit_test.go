package audit

import (
	"context"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "cloudops-agent/internal/common/errors"
	"cloudops-agent/internal/common/logger"
	"cloudops-agent/internal/models"
)

type failingStore struct {
	err   error
	calls int
}

func (f *failingStore) Append(context.Context, *models.InteractionRecord) error {
	f.calls++
	return f.err
}

func (f *failingStore) List(context.Context, int) ([]models.InteractionRecord, error) {
	return nil, f.err
}

func TestLog_Track_AppendsExactlyOnce(t *testing.T) {
	store := NewMemoryStore()
	log := NewLog(store, logger.NewTestLogger(t))

	rec, err := log.Track(context.Background(), "create a vm", func(rec *models.InteractionRecord) error {
		rec.DetectedIntent = "create_vm"
		rec.Entities = models.EntitySet{"name": "default-vm"}
		rec.SystemResponse = "I'll create a VM named default-vm"
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.ID)
	assert.Equal(t, 1, store.Len())

	records, err := log.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "create a vm", records[0].UserMessage)
	assert.Equal(t, "create_vm", records[0].DetectedIntent)
	assert.Nil(t, records[0].OperationExecuted)
	assert.False(t, records[0].Timestamp.IsZero())
}

func TestLog_Track_RecordsOnFnError(t *testing.T) {
	store := NewMemoryStore()
	log := NewLog(store, logger.NewTestLogger(t))
	boom := errors.New("boom")

	_, err := log.Track(context.Background(), "delete vm x", func(rec *models.InteractionRecord) error {
		rec.SystemResponse = "failed"
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, store.Len())
}

func TestLog_Track_RecordsOnPanic(t *testing.T) {
	store := NewMemoryStore()
	log := NewLog(store, logger.NewTestLogger(t))

	assert.Panics(t, func() {
		_, _ = log.Track(context.Background(), "resize", func(*models.InteractionRecord) error {
			panic("nil map")
		})
	})

	records, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].SystemResponse, "nil map")
}

func TestLog_Track_PersistenceFailureWins(t *testing.T) {
	store := &failingStore{err: errors.New("connection refused")}
	log := NewLog(store, logger.NewTestLogger(t))

	_, err := log.Track(context.Background(), "show usage", func(*models.InteractionRecord) error {
		return errors.New("provider down")
	})

	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodePersistenceFailed))
	assert.Equal(t, 1, store.calls)
}

func TestLog_Track_IgnoresCancelledContext(t *testing.T) {
	store := NewMemoryStore()
	log := NewLog(store, logger.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	_, err := log.Track(ctx, "create network", func(*models.InteractionRecord) error {
		cancel()
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_NewestFirstAndImmutable(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := &models.InteractionRecord{UserMessage: "one", Entities: models.EntitySet{"name": "a"}}
	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, &models.InteractionRecord{UserMessage: "two"}))
	require.NoError(t, store.Append(ctx, &models.InteractionRecord{UserMessage: "three"}))

	first.Entities["name"] = "mutated"
	first.UserMessage = "mutated"

	records, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "three", records[0].UserMessage)
	assert.Equal(t, "two", records[1].UserMessage)

	all, err := store.List(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "one", all[2].UserMessage)
	assert.Equal(t, "a", all[2].Entities["name"])
	assert.Equal(t, int64(1), all[2].ID)
}

func TestMemoryStore_ConcurrentAppends(t *testing.T) {
	store := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Append(context.Background(), &models.InteractionRecord{UserMessage: "x"})
		}()
	}
	wg.Wait()

	records, err := store.List(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, records, 50)

	seen := make(map[int64]bool)
	for _, r := range records {
		assert.False(t, seen[r.ID], "duplicate id %d", r.ID)
		seen[r.ID] = true
	}
}

func TestLog_Search(t *testing.T) {
	store := NewMemoryStore()
	log := NewLog(store, logger.NewTestLogger(t))
	ctx := context.Background()

	for _, msg := range []string{"Create a VM", "delete volume data", "resize the vm web01"} {
		_, err := log.Track(ctx, msg, func(*models.InteractionRecord) error { return nil })
		require.NoError(t, err)
	}

	found, err := log.Search(ctx, "vm", 10)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "resize the vm web01", found[0].UserMessage)

	_, err = NewLog(&failingStore{}, logger.NewTestLogger(t)).Search(ctx, "vm", 10)
	assert.ErrorIs(t, err, ErrSearchUnavailable)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultListLimit, ClampLimit(0))
	assert.Equal(t, DefaultListLimit, ClampLimit(-3))
	assert.Equal(t, 10, ClampLimit(10))
	assert.Equal(t, MaxListLimit, ClampLimit(10000))
}

func TestPostgresStore_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	rec := &models.InteractionRecord{
		Timestamp:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		UserMessage:    "User confirmed operation",
		DetectedIntent: "delete_vm",
		Entities:       models.EntitySet{"name": "web01"},
		SystemResponse: "VM web01 has been deleted",
	}
	rec.MarkExecuted("delete_vm", map[string]interface{}{"status": "success"})

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO user_interactions")).
		WithArgs(rec.Timestamp, "User confirmed operation", "delete_vm", `{"name":"web01"}`,
			"VM web01 has been deleted", "delete_vm", `{"status":"success"}`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	require.NoError(t, store.Append(context.Background(), rec))
	assert.Equal(t, int64(42), rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendWithoutResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rec := &models.InteractionRecord{
		Timestamp:      time.Now().UTC(),
		UserMessage:    "hello",
		DetectedIntent: "unknown",
		Entities:       models.EntitySet{},
		SystemResponse: "I'm not sure what you want to do.",
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO user_interactions")).
		WithArgs(sqlmock.AnyArg(), "hello", "unknown", `{}`, sqlmock.AnyArg(), nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	require.NoError(t, NewPostgresStore(db).Append(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO user_interactions")).
		WillReturnError(errors.New("disk full"))

	err = NewPostgresStore(db).Append(context.Background(), &models.InteractionRecord{UserMessage: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestPostgresStore_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "timestamp", "user_message", "detected_intent", "entities",
		"system_response", "operation_executed", "operation_result",
	}).
		AddRow(int64(2), ts, "User confirmed operation", "create_vm", []byte(`{"name":"a","flavor":"S.4"}`),
			"VM a is being created", "create_vm", []byte(`{"status":"success"}`)).
		AddRow(int64(1), ts, "create vm a", "create_vm", []byte(`{"name":"a"}`),
			"I'll create a VM named a", nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_interactions ORDER BY id DESC LIMIT $1")).
		WithArgs(10).
		WillReturnRows(rows)

	records, err := NewPostgresStore(db).List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, int64(2), records[0].ID)
	require.NotNil(t, records[0].OperationExecuted)
	assert.Equal(t, "create_vm", *records[0].OperationExecuted)
	assert.Equal(t, "success", records[0].OperationResult["status"])
	assert.Equal(t, "S.4", records[0].Entities["flavor"])

	assert.Nil(t, records[1].OperationExecuted)
	assert.Nil(t, records[1].OperationResult)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func fakeES(t *testing.T, handler func(r *http.Request) (int, string)) *elasticsearch.Client {
	t.Helper()
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{"http://es.test:9200"},
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			status, body := handler(r)
			header := http.Header{}
			header.Set("X-Elastic-Product", "Elasticsearch")
			header.Set("Content-Type", "application/json")
			return &http.Response{
				StatusCode: status,
				Header:     header,
				Body:       io.NopCloser(strings.NewReader(body)),
				Request:    r,
			}, nil
		}),
	})
	require.NoError(t, err)
	return client
}

func TestElasticsearchStore_AppendUsesRecordID(t *testing.T) {
	var gotPath, gotBody string
	client := fakeES(t, func(r *http.Request) (int, string) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		return http.StatusCreated, `{"result":"created"}`
	})

	store := NewElasticsearchStore(client, "")
	err := store.Append(context.Background(), &models.InteractionRecord{ID: 7, UserMessage: "delete vm web01"})
	require.NoError(t, err)

	assert.Equal(t, "/user_interactions/_doc/7", gotPath)
	assert.Contains(t, gotBody, `"user_message":"delete vm web01"`)
}

func TestElasticsearchStore_AppendError(t *testing.T) {
	client := fakeES(t, func(*http.Request) (int, string) {
		return http.StatusInternalServerError, `{"error":"shard failure"}`
	})

	err := NewElasticsearchStore(client, "audit").Append(context.Background(), &models.InteractionRecord{ID: 1})
	require.Error(t, err)
}

func TestElasticsearchStore_Search(t *testing.T) {
	var gotQuery string
	client := fakeES(t, func(r *http.Request) (int, string) {
		b, _ := io.ReadAll(r.Body)
		gotQuery = string(b)
		return http.StatusOK, `{"hits":{"hits":[
			{"_source":{"id":3,"user_message":"resize the vm web01","detected_intent":"resize_vm"}},
			{"_source":{"id":1,"user_message":"create a vm","detected_intent":"create_vm"}}
		]}}`
	})

	records, err := NewElasticsearchStore(client, "").Search(context.Background(), "vm", 5)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(3), records[0].ID)
	assert.Equal(t, "resize_vm", records[0].DetectedIntent)
	assert.Contains(t, gotQuery, `"user_message"`)
	assert.Contains(t, gotQuery, `"size":5`)
}

func TestFanOut_MirrorFailureIsBestEffort(t *testing.T) {
	primary := NewMemoryStore()
	mirror := &failingStore{err: errors.New("es down")}
	fan := NewFanOut(primary, logger.NewTestLogger(t), mirror)

	rec := &models.InteractionRecord{UserMessage: "show usage"}
	require.NoError(t, fan.Append(context.Background(), rec))

	assert.Equal(t, 1, primary.Len())
	assert.Equal(t, 1, mirror.calls)
	assert.Equal(t, int64(1), rec.ID)
}

func TestFanOut_PrimaryFailureSkipsMirrors(t *testing.T) {
	primary := &failingStore{err: errors.New("pg down")}
	mirror := NewMemoryStore()
	fan := NewFanOut(primary, logger.NewTestLogger(t), mirror)

	err := fan.Append(context.Background(), &models.InteractionRecord{UserMessage: "x"})
	require.Error(t, err)
	assert.Equal(t, 0, mirror.Len())
}

func TestFanOut_SearchFallsBackToPrimary(t *testing.T) {
	primary := NewMemoryStore()
	fan := NewFanOut(primary, logger.NewTestLogger(t), &failingStore{err: errors.New("es down")})

	require.NoError(t, fan.Append(context.Background(), &models.InteractionRecord{UserMessage: "create network backend"}))

	found, err := fan.Search(context.Background(), "network", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
}
