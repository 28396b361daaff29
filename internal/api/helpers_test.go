package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/api/shared"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/service"
	"github.com/phrazzld/inkwell-api/internal/store"
	"github.com/stretchr/testify/require"
)

// fakeGenerations implements GenerationManager with overridable functions.
type fakeGenerations struct {
	SubmitFn    func(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error)
	CancelFn    func(ctx context.Context, taskID, ownerID uuid.UUID) (*domain.GenerationTask, error)
	GetStatusFn func(ctx context.Context, taskID, requester uuid.UUID) (*service.TaskView, error)
	ListTasksFn func(ctx context.Context, ownerID uuid.UUID, filter store.TaskFilter, page store.Page) ([]*service.TaskView, int, error)
}

var _ GenerationManager = (*fakeGenerations)(nil)

func (f *fakeGenerations) Submit(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error) {
	return f.SubmitFn(ctx, req)
}

func (f *fakeGenerations) Cancel(ctx context.Context, taskID, ownerID uuid.UUID) (*domain.GenerationTask, error) {
	return f.CancelFn(ctx, taskID, ownerID)
}

func (f *fakeGenerations) GetStatus(ctx context.Context, taskID, requester uuid.UUID) (*service.TaskView, error) {
	return f.GetStatusFn(ctx, taskID, requester)
}

func (f *fakeGenerations) ListTasks(
	ctx context.Context,
	ownerID uuid.UUID,
	filter store.TaskFilter,
	page store.Page,
) ([]*service.TaskView, int, error) {
	return f.ListTasksFn(ctx, ownerID, filter, page)
}

// fakeAccounts implements AccountManager with overridable functions.
type fakeAccounts struct {
	RegisterFn   func(ctx context.Context, email, password string) (*domain.Account, error)
	LoginFn      func(ctx context.Context, email, password string) (*domain.Account, error)
	GetAccountFn func(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
}

var _ AccountManager = (*fakeAccounts)(nil)

func (f *fakeAccounts) Register(ctx context.Context, email, password string) (*domain.Account, error) {
	return f.RegisterFn(ctx, email, password)
}

func (f *fakeAccounts) Login(ctx context.Context, email, password string) (*domain.Account, error) {
	return f.LoginFn(ctx, email, password)
}

func (f *fakeAccounts) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	return f.GetAccountFn(ctx, accountID)
}

// asAccount authenticates req as accountID the way the auth middleware does.
func asAccount(req *http.Request, accountID uuid.UUID) *http.Request {
	return req.WithContext(shared.WithAccountID(req.Context(), accountID))
}

// withURLParam sets a chi URL parameter on req.
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) shared.ErrorResponse {
	t.Helper()
	var resp shared.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "body: %s", w.Body.String())
	return resp
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 4)
	}
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// multipartRequest builds an image-to-image form. A nil image omits the file part.
func multipartRequest(t *testing.T, fields map[string]string, fileName string, image []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		part, err := mw.CreateFormFile("image", fileName)
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/generations/image-to-image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
