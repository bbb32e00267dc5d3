package echoapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trezcool/formify/core"
	"github.com/trezcool/formify/core/group"
	"github.com/trezcool/formify/core/user"
	"github.com/trezcool/formify/services/filestore"
	"github.com/trezcool/formify/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type fixture struct {
	*testutil.App
	conf  *core.Config
	files *filestore.Disk
	srv   Server
	auth  authenticator
}

func setup(t *testing.T) *fixture {
	t.Helper()
	app := testutil.NewApp(t)
	conf := &core.Config{
		Env:       "test",
		TestMode:  true,
		AppName:   "formify",
		SecretKey: "secret",
		Server: core.ServerConfig{
			JWTExpirationDelta: time.Hour,
			BodyLimit:          "60M",
		},
		Uploads: core.UploadsConfig{
			Dir:         t.TempDir(),
			URLPrefix:   "/uploads",
			MaxFileSize: 1 << 20,
		},
		Admin: core.AdminConfig{
			SeedKey:  "seed-me",
			Roll:     "ADMIN",
			Name:     "Admin",
			Password: testutil.Password,
		},
	}
	files, err := filestore.NewDisk(conf.Uploads)
	require.NoError(t, err)

	srv := NewServer(&Options{
		Conf:           conf,
		Logger:         app.Logger,
		Pinger:         app.DB,
		Users:          app.Users,
		Groups:         app.Groups,
		Files:          files,
		Validate:       app.Validate,
		Translator:     app.Translator,
		DisableReqLogs: true,
	})
	return &fixture{App: app, conf: conf, files: files, srv: srv, auth: newAuthenticator(conf, app.Users)}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func (f *fixture) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := f.auth.GenerateToken(usr)
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

func (f *fixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, _ := newAuthRequest(method, path, token, data...)
	return f.serve(req)
}

func (f *fixture) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := f.do(method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

type upload struct {
	field, name string
	content     []byte
}

// newMultipartRequest sends the form fields of `sf` (if any) and the uploads as multipart/form-data.
func newMultipartRequest(t *testing.T, path, token string, sf *group.SubmissionForm, uploads ...upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if sf != nil {
		var fields map[string]interface{}
		require.NoError(t, json.Unmarshal(marshallObj(t, sf), &fields))
		for k, v := range fields {
			require.NoError(t, mw.WriteField(k, fmt.Sprint(v)))
		}
	}
	for _, u := range uploads {
		fw, err := mw.CreateFormFile(u.field, u.name)
		require.NoError(t, err)
		_, err = fw.Write(u.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

// decode unmarshals the response body into a generic JSON object.
func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var res map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode() failed: %v; body %s", err, rec.Body.String())
	}
	return res
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	wantCode := tt.wantCode
	if wantCode == 0 {
		wantCode = http.StatusOK
	}
	if rec.Code != wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
