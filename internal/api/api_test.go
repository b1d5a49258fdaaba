package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stefando/weddingPhotos/internal/config"
)

const bucket = "photos"

// fakeRPC answers the token RPC like the backend does.
func fakeRPC(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rpc/"+config.DefaultTokenRPCFunction, r.URL.Path)
		var body map[string]string
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch body[config.DefaultTokenRPCParam] {
		case "GOODTOKEN":
			_, _ = w.Write([]byte(`42`))
		case "OTHERTOKEN":
			_, _ = w.Write([]byte(`[{"famille_id": 7}]`))
		case "ORPHAN":
			_, _ = w.Write([]byte(`null`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"invalid token"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type storedObject struct {
	contentType string
	size        int
}

// fakeStore is a minimal S3 endpoint that ignores the listing prefix so the
// client-side filter is exercised.
type fakeStore struct {
	*httptest.Server

	mu         sync.Mutex
	requests   int
	objects    map[string]storedObject
	putStatus  int
	putBody    string
	listStatus int
	listBody   string
}

func newFakeStore(t *testing.T) *fakeStore {
	t.Helper()
	fs := &fakeStore{objects: map[string]storedObject{}}
	fs.Server = httptest.NewServer(http.HandlerFunc(fs.serve))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeStore) serve(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.requests++

	if !strings.HasPrefix(r.Header.Get("Authorization"), "AWS4-HMAC-SHA256 Credential=access/") {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	switch r.Method {
	case http.MethodPut:
		if fs.putStatus != 0 {
			w.WriteHeader(fs.putStatus)
			_, _ = w.Write([]byte(fs.putBody))
			return
		}
		body, _ := io.ReadAll(r.Body)
		key := strings.TrimPrefix(r.URL.Path, "/"+bucket+"/")
		fs.objects[key] = storedObject{contentType: r.Header.Get("Content-Type"), size: len(body)}
	case http.MethodGet:
		if fs.listStatus != 0 || fs.listBody != "" {
			if fs.listStatus != 0 {
				w.WriteHeader(fs.listStatus)
			}
			_, _ = w.Write([]byte(fs.listBody))
			return
		}
		keys := make([]string, 0, len(fs.objects))
		for k := range fs.objects {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><LastModified>2026-06-20T14:30:00.000Z</LastModified><Size>%d</Size></Contents>", k, fs.objects[k].size)
		}
		b.WriteString(`</ListBucketResult>`)
		_, _ = w.Write([]byte(b.String()))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (fs *fakeStore) requestCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.requests
}

type testEnv struct {
	router http.Handler
	store  *fakeStore
	reg    *prometheus.Registry
}

func testConfig(rpcURL, storeURL string) config.Config {
	return config.Config{
		SupabaseURL:      rpcURL,
		ServiceRoleKey:   "service-role",
		TokenRPCFunction: config.DefaultTokenRPCFunction,
		TokenRPCParam:    config.DefaultTokenRPCParam,
		Region:           "eu-paris-1",
		Bucket:           bucket,
		AccessKey:        "access",
		SecretKey:        "secret",
		S3Endpoint:       storeURL,
		PublicBaseURL:    "https://cdn.example.com/photos",
		MaxUploadBytes:   4096,
		ListMaxPages:     1,
		UpstreamTimeout:  5 * time.Second,
		LogFormat:        "text",
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	rpc := fakeRPC(t)
	store := newFakeStore(t)
	cfg := testConfig(rpc.URL, store.URL)
	if mutate != nil {
		mutate(&cfg)
	}

	reg := prometheus.NewRegistry()
	svc, err := Build(context.Background(), cfg, quietLogger(), reg)
	require.NoError(t, err)

	return &testEnv{
		router: NewRouter(Deps{Photos: svc, JWTSecret: cfg.JWTSecret, Logger: quietLogger(), Gatherer: reg}),
		store:  store,
		reg:    reg,
	}
}

func uploadRequest(t *testing.T, path, token, fileName, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("caption", "le gâteau"))
	if data != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, fileName))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("x-app-token", token)
	}
	return req
}

func listRequest(method, path, token string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("x-app-token", token)
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type uploadResponse struct {
	Path      string `json:"path"`
	PublicURL string `json:"publicUrl"`
	FamilleID int64  `json:"familleId"`
}

type listItem struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	Size         int64  `json:"size"`
	LastModified string `json:"lastModified"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestUploadPhoto(t *testing.T) {
	env := newTestEnv(t, nil)
	jpeg := bytes.Repeat([]byte{0xff, 0xd8}, 1024)

	rec := serve(env.router, uploadRequest(t, "/upload-photo", "GOODTOKEN", "photo.JPG", "image/jpeg", jpeg))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	res := decode[uploadResponse](t, rec)
	assert.Regexp(t, `^photos/famille-42/\d+-[0-9a-z]{6}\.jpg$`, res.Path)
	assert.True(t, strings.HasPrefix(res.PublicURL, "https://cdn.example.com/photos/famille-42/"), res.PublicURL)
	assert.Equal(t, int64(42), res.FamilleID)

	key := strings.TrimPrefix(res.Path, bucket+"/")
	stored, ok := env.store.objects[key]
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", stored.contentType)
	assert.Equal(t, len(jpeg), stored.size)
}

func TestUploadPhotoUnderFunctionsPrefix(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := serve(env.router, uploadRequest(t, "/functions/v1/upload-photo", "GOODTOKEN", "a.webp", "image/webp", []byte("RIFF")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Regexp(t, `\.webp$`, decode[uploadResponse](t, rec).Path)
}

func TestUploadPhotoInvalidTokenSkipsStore(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, token := range []string{"BADTOKEN", "ORPHAN"} {
		rec := serve(env.router, uploadRequest(t, "/upload-photo", token, "a.png", "image/png", []byte("png")))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"Token invalide"}`, rec.Body.String())
	}
	assert.Zero(t, env.store.requestCount())
}

func TestUploadPhotoStoreRejection(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.putStatus = http.StatusForbidden
	env.store.putBody = `<Error><Code>AccessDenied</Code><Message>` + strings.Repeat("x", 600) + `</Message></Error>`

	rec := serve(env.router, uploadRequest(t, "/upload-photo", "GOODTOKEN", "a.png", "image/png", []byte("png")))
	require.Equal(t, http.StatusBadGateway, rec.Code)

	body := decode[errorBody](t, rec)
	assert.Equal(t, msgStorageFailure, body.Error)
	assert.Equal(t, http.StatusForbidden, body.Status)
	assert.Contains(t, body.Details, "AccessDenied")
	assert.Len(t, body.Details, 500)
	assert.Equal(t, 1, env.store.requestCount())
}

func TestUploadPhotoSizeBoundary(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.MaxUploadBytes = 1024 })

	rec := serve(env.router, uploadRequest(t, "/upload-photo", "GOODTOKEN", "a.gif", "image/gif", make([]byte, 1024)))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(env.router, uploadRequest(t, "/upload-photo", "GOODTOKEN", "a.gif", "image/gif", make([]byte, 1025)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.JSONEq(t, `{"error":"Fichier trop volumineux"}`, rec.Body.String())

	assert.Equal(t, 1, env.store.requestCount())
}

func TestUploadPhotoBadRequests(t *testing.T) {
	env := newTestEnv(t, nil)

	missingToken := uploadRequest(t, "/upload-photo", "", "a.png", "image/png", []byte("png"))

	jsonBody := httptest.NewRequest(http.MethodPost, "/upload-photo", strings.NewReader(`{}`))
	jsonBody.Header.Set("Content-Type", "application/json")
	jsonBody.Header.Set("x-app-token", "GOODTOKEN")

	noFile := uploadRequest(t, "/upload-photo", "GOODTOKEN", "", "", nil)

	garbage := httptest.NewRequest(http.MethodPost, "/upload-photo", strings.NewReader("not multipart at all"))
	garbage.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
	garbage.Header.Set("x-app-token", "GOODTOKEN")

	noBoundary := httptest.NewRequest(http.MethodPost, "/upload-photo", strings.NewReader("--xyz--"))
	noBoundary.Header.Set("Content-Type", "multipart/form-data")
	noBoundary.Header.Set("x-app-token", "GOODTOKEN")

	cases := []struct {
		name string
		req  *http.Request
		msg  string
	}{
		{"missing token", missingToken, msgMissingToken},
		{"wrong content type", jsonBody, msgBadContentType},
		{"missing file", noFile, msgMissingFile},
		{"garbage body", garbage, msgBadMultipart},
		{"missing boundary", noBoundary, msgBadMultipart},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(env.router, tc.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.msg, decode[errorBody](t, rec).Error)
		})
	}
	assert.Zero(t, env.store.requestCount())
}

func multipartRequest(t *testing.T, token string, build func(mw *multipart.Writer)) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	build(mw)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload-photo", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("x-app-token", token)
	return req
}

func TestUploadPhotoTextFileFieldIsNotAnUpload(t *testing.T) {
	env := newTestEnv(t, nil)

	req := multipartRequest(t, "GOODTOKEN", func(mw *multipart.Writer) {
		require.NoError(t, mw.WriteField("file", "not a photo"))
	})
	rec := serve(env.router, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgMissingFile, decode[errorBody](t, rec).Error)
	assert.Zero(t, env.store.requestCount())
}

func TestUploadPhotoTextFieldBeforeRealFile(t *testing.T) {
	env := newTestEnv(t, nil)

	req := multipartRequest(t, "GOODTOKEN", func(mw *multipart.Writer) {
		require.NoError(t, mw.WriteField("file", "not a photo"))
		fw, err := mw.CreateFormFile("file", "mariage.jpg")
		require.NoError(t, err)
		_, err = fw.Write([]byte("jpeg bytes"))
		require.NoError(t, err)
	})
	rec := serve(env.router, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[uploadResponse](t, rec)
	assert.True(t, strings.HasSuffix(res.Path, ".jpg"), res.Path)
	assert.Equal(t, 1, env.store.requestCount())
}

func TestUploadPhotoRejectsSecondFile(t *testing.T) {
	env := newTestEnv(t, nil)

	req := multipartRequest(t, "GOODTOKEN", func(mw *multipart.Writer) {
		for _, name := range []string{"a.jpg", "b.jpg"} {
			fw, err := mw.CreateFormFile("file", name)
			require.NoError(t, err)
			_, err = fw.Write([]byte(name))
			require.NoError(t, err)
		}
	})
	rec := serve(env.router, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgTooManyFiles, decode[errorBody](t, rec).Error)
	assert.Zero(t, env.store.requestCount())
}

func TestListPhotosTenantsAreDisjoint(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, tok := range []string{"GOODTOKEN", "OTHERTOKEN"} {
		rec := serve(env.router, uploadRequest(t, "/upload-photo", tok, "same.png", "image/png", []byte(tok)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	lists := map[string][]listItem{}
	for tok, method := range map[string]string{"GOODTOKEN": http.MethodGet, "OTHERTOKEN": http.MethodPost} {
		rec := serve(env.router, listRequest(method, "/list-photos", tok))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		lists[tok] = decode[struct {
			Items []listItem `json:"items"`
		}](t, rec).Items
	}

	require.Len(t, lists["GOODTOKEN"], 1)
	require.Len(t, lists["OTHERTOKEN"], 1)
	a, b := lists["GOODTOKEN"][0], lists["OTHERTOKEN"][0]
	assert.True(t, strings.HasPrefix(a.Key, "famille-42/"))
	assert.True(t, strings.HasPrefix(b.Key, "famille-7/"))
	assert.Equal(t, a.Key[strings.Index(a.Key, "/")+1:], a.Name)
	assert.Equal(t, "https://cdn.example.com/photos/"+a.Key, a.URL)
	assert.Equal(t, int64(len("GOODTOKEN")), a.Size)
	assert.Equal(t, "2026-06-20T14:30:00.000Z", a.LastModified)
}

func TestListPhotosEmpty(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := serve(env.router, listRequest(http.MethodGet, "/functions/v1/list-photos", "GOODTOKEN"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
}

func TestListPhotosErrors(t *testing.T) {
	cases := []struct {
		name       string
		token      string
		listStatus int
		listBody   string
		want       int
		msg        string
	}{
		{"missing token", "", 0, "", http.StatusBadRequest, msgMissingToken},
		{"invalid token", "BADTOKEN", 0, "", http.StatusUnauthorized, msgInvalidToken},
		{"unknown famille", "ORPHAN", 0, "", http.StatusNotFound, msgFamilleNotFound},
		{"store failure", "GOODTOKEN", http.StatusServiceUnavailable, "<Error>SlowDown</Error>", http.StatusBadGateway, msgStorageFailure},
		{"unparseable listing", "GOODTOKEN", 0, "<html>proxy error</html>", http.StatusBadGateway, msgStorageFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.store.listStatus = tc.listStatus
			env.store.listBody = tc.listBody

			rec := serve(env.router, listRequest(http.MethodGet, "/list-photos", tc.token))
			assert.Equal(t, tc.want, rec.Code)
			body := decode[errorBody](t, rec)
			assert.Equal(t, tc.msg, body.Error)
			if tc.listStatus != 0 {
				assert.Equal(t, tc.listStatus, body.Status)
				assert.Contains(t, body.Details, "SlowDown")
			}
		})
	}
}

func TestPreflight(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.JWTSecret = "gateway-secret" })

	cases := map[string]string{
		"/upload-photo":              "POST, OPTIONS",
		"/functions/v1/upload-photo": "POST, OPTIONS",
		"/list-photos":               "GET, POST, OPTIONS",
		"/functions/v1/list-photos":  "GET, POST, OPTIONS",
	}
	for path, methods := range cases {
		rec := serve(env.router, httptest.NewRequest(http.MethodOptions, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Empty(t, rec.Body.String(), path)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "authorization, x-client-info, apikey, content-type, x-app-token", rec.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, methods, rec.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
	}
	assert.Zero(t, env.store.requestCount())
}

func TestGatewayJWTEnforced(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.JWTSecret = "gateway-secret" })

	rec := serve(env.router, listRequest(http.MethodGet, "/list-photos", "GOODTOKEN"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Zero(t, env.store.requestCount())
}

func TestUnconfiguredServiceAnswers500(t *testing.T) {
	_, err := Build(context.Background(), config.Config{}, quietLogger(), nil)
	require.ErrorIs(t, err, config.ErrMissingConfig)

	router := NewRouter(Deps{ConfigErr: err, Logger: quietLogger()})

	rec := serve(router, uploadRequest(t, "/upload-photo", "GOODTOKEN", "a.png", "image/png", []byte("png")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Configuration serveur manquante"}`, rec.Body.String())

	rec = serve(router, listRequest(http.MethodGet, "/list-photos", "GOODTOKEN"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = serve(router, httptest.NewRequest(http.MethodOptions, "/list-photos", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(NewRouter(Deps{}), listRequest(http.MethodGet, "/list-photos", "GOODTOKEN"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := serve(env.router, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	serve(env.router, uploadRequest(t, "/upload-photo", "GOODTOKEN", "a.png", "image/png", []byte("png")))
	serve(env.router, listRequest(http.MethodGet, "/list-photos", "BADTOKEN"))

	rec = serve(env.router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `famille_photos_operation_duration_seconds_count{operation="upload"} 1`)
	assert.Contains(t, rec.Body.String(), `famille_photos_operation_errors_total{operation="list"} 1`)
	assert.Contains(t, rec.Body.String(), `famille_photos_uploaded_bytes_total 3`)
}

func TestNewHandler(t *testing.T) {
	rpc := fakeRPC(t)
	store := newFakeStore(t)

	h := NewHandler(context.Background(), testConfig(rpc.URL, store.URL), quietLogger(), prometheus.NewRegistry())
	rec := serve(h, listRequest(http.MethodGet, "/list-photos", "GOODTOKEN"))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	broken := NewHandler(context.Background(), config.Config{}, quietLogger(), nil)
	rec = serve(broken, listRequest(http.MethodGet, "/list-photos", "GOODTOKEN"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	rec = serve(broken, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
