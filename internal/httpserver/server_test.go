package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sendrelay/sendrelay/internal/audit"
	"github.com/sendrelay/sendrelay/internal/notification"
	"github.com/sendrelay/sendrelay/internal/telemetry"
	"github.com/sendrelay/sendrelay/internal/upload"
)

// mockDispatcher is a mock implementation of the Dispatcher interface.
type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, tag string, msg notification.Message) (*audit.Record, error) {
	args := m.Called(ctx, tag, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*audit.Record), args.Error(1)
}

func (m *mockDispatcher) Enqueue(ctx context.Context, tag string, msg notification.Message, priority int) (*audit.Record, error) {
	args := m.Called(ctx, tag, msg, priority)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*audit.Record), args.Error(1)
}

func (m *mockDispatcher) Get(ctx context.Context, id uuid.UUID) (*audit.Record, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*audit.Record), args.Error(1)
}

func (m *mockDispatcher) QueueEnabled() bool {
	return m.Called().Bool(0)
}

func newTestServer(t *testing.T, d Dispatcher) (*Server, *upload.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := upload.NewStore(t.TempDir())
	require.NoError(t, err)

	log, err := telemetry.NewLogger(&telemetry.LogConfig{Level: "error", Format: "text"})
	require.NoError(t, err)

	return New(Config{DefaultChannel: "email"}, d, store, log), store
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, new(mockDispatcher))

	w := doJSON(t, s, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestSendNotification(t *testing.T) {
	d := new(mockDispatcher)
	rec := &audit.Record{ID: uuid.New(), Channel: notification.ChannelSMS, Status: audit.StatusDelivered}
	d.On("Dispatch", mock.Anything, "sms",
		notification.Message{Recipient: "+1555", Body: "hi"}).Return(rec, nil)

	s, _ := newTestServer(t, d)

	w := doJSON(t, s, http.MethodPost, "/api/notifications", map[string]interface{}{
		"channel":   "sms",
		"recipient": "+1555",
		"message":   "hi",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "notification sent")
	d.AssertExpectations(t)
}

func TestSendNotification_DefaultChannel(t *testing.T) {
	d := new(mockDispatcher)
	rec := &audit.Record{ID: uuid.New(), Channel: notification.ChannelEmail, Status: audit.StatusDelivered}
	d.On("Dispatch", mock.Anything, "email", mock.Anything).Return(rec, nil)

	s, _ := newTestServer(t, d)

	w := doJSON(t, s, http.MethodPost, "/api/notifications", map[string]interface{}{
		"recipient": "u@example.com",
		"message":   "hi",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	d.AssertExpectations(t)
}

func TestSendNotification_MissingFields(t *testing.T) {
	d := new(mockDispatcher)
	s, _ := newTestServer(t, d)

	w := doJSON(t, s, http.MethodPost, "/api/notifications", map[string]interface{}{
		"channel": "sms",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	d.AssertNotCalled(t, "Dispatch")
}

func TestSendNotification_ChannelFailure(t *testing.T) {
	d := new(mockDispatcher)
	rec := &audit.Record{ID: uuid.New(), Channel: notification.ChannelTelegram, Status: audit.StatusFailed}
	d.On("Dispatch", mock.Anything, "telegram", mock.Anything).Return(rec,
		notification.NewChannelError(notification.ChannelTelegram, notification.ErrorCodeUnreachable, nil))

	s, _ := newTestServer(t, d)

	w := doJSON(t, s, http.MethodPost, "/api/notifications", map[string]interface{}{
		"channel":   "telegram",
		"recipient": "42",
		"message":   "hi",
	})

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "unreachable")
}

func TestSendNotification_Queued(t *testing.T) {
	d := new(mockDispatcher)
	rec := &audit.Record{ID: uuid.New(), Channel: notification.ChannelEmail, Status: audit.StatusPending}
	d.On("QueueEnabled").Return(true)
	d.On("Enqueue", mock.Anything, "email", mock.Anything, 2).Return(rec, nil)

	s, _ := newTestServer(t, d)

	w := doJSON(t, s, http.MethodPost, "/api/notifications", map[string]interface{}{
		"recipient": "u@example.com",
		"message":   "hi",
		"queued":    true,
		"priority":  2,
	})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "notification queued")
}

func TestSendNotification_QueueUnavailable(t *testing.T) {
	d := new(mockDispatcher)
	d.On("QueueEnabled").Return(false)

	s, _ := newTestServer(t, d)

	w := doJSON(t, s, http.MethodPost, "/api/notifications", map[string]interface{}{
		"recipient": "u@example.com",
		"message":   "hi",
		"queued":    true,
	})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	d.AssertNotCalled(t, "Enqueue")
}

func TestGetNotification(t *testing.T) {
	id := uuid.New()
	d := new(mockDispatcher)
	d.On("Get", mock.Anything, id).Return(&audit.Record{ID: id, Status: audit.StatusDelivered}, nil)

	s, _ := newTestServer(t, d)

	w := doJSON(t, s, http.MethodGet, "/api/notifications/"+id.String(), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), id.String())
}

func TestGetNotification_NotFound(t *testing.T) {
	d := new(mockDispatcher)
	d.On("Get", mock.Anything, mock.Anything).Return(nil, audit.ErrNotFound)

	s, _ := newTestServer(t, d)

	w := doJSON(t, s, http.MethodGet, "/api/notifications/"+uuid.NewString(), nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetNotification_BadID(t *testing.T) {
	s, _ := newTestServer(t, new(mockDispatcher))

	w := doJSON(t, s, http.MethodGet, "/api/notifications/not-a-uuid", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func multipartUpload(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return &buf, mw.FormDataContentType()
}

func TestUpload_RoundTrip(t *testing.T) {
	s, store := newTestServer(t, new(mockDispatcher))

	body, contentType := multipartUpload(t, "file", "report.txt", "quarterly numbers")
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "file uploaded successfully")
	assert.Contains(t, w.Body.String(), "report.txt")

	// Stored under the original filename.
	stored, err := os.ReadFile(filepath.Join(store.Dir(), "report.txt"))
	require.NoError(t, err)
	assert.Equal(t, "quarterly numbers", string(stored))

	// And retrievable through the download endpoint.
	getW := doJSON(t, s, http.MethodGet, "/api/uploads/report.txt", nil)
	assert.Equal(t, http.StatusOK, getW.Code)
	assert.Equal(t, "quarterly numbers", getW.Body.String())
}

func TestUpload_TraversalNameCannotEscapeStore(t *testing.T) {
	s, store := newTestServer(t, new(mockDispatcher))

	// The multipart layer reduces the name to its base (RFC 7578 4.2),
	// so the file lands inside the store under "passwd" and nowhere else.
	body, contentType := multipartUpload(t, "file", "../../etc/passwd", "root:x:0:0")
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"passwd"`)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "passwd", entries[0].Name())

	// Nothing escaped above the store directory.
	_, err = os.Stat(filepath.Join(store.Dir(), "..", "etc"))
	assert.True(t, os.IsNotExist(err))
}

func TestUpload_InvalidFilename(t *testing.T) {
	// Names the multipart layer cannot reduce to a usable base are
	// rejected without a storage write.
	for _, name := range []string{"..", `C:\boot.ini`} {
		t.Run(name, func(t *testing.T) {
			s, store := newTestServer(t, new(mockDispatcher))

			body, contentType := multipartUpload(t, "file", name, "payload")
			req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
			req.Header.Set("Content-Type", contentType)
			w := httptest.NewRecorder()
			s.Engine().ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "invalid filename")

			entries, err := os.ReadDir(store.Dir())
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestUpload_NoFile(t *testing.T) {
	s, store := newTestServer(t, new(mockDispatcher))

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xxx")
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "no file provided")

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "a failed upload must not write to the store")
}

func TestUpload_EmptyFile(t *testing.T) {
	s, store := newTestServer(t, new(mockDispatcher))

	body, contentType := multipartUpload(t, "file", "empty.txt", "")
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownload_NotFound(t *testing.T) {
	s, _ := newTestServer(t, new(mockDispatcher))

	w := doJSON(t, s, http.MethodGet, "/api/uploads/missing.txt", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "file not found")
}
