package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/classync/classync/apps/api/echo"
	"github.com/classync/classync/assets"
	"github.com/classync/classync/core"
	"github.com/classync/classync/core/notification"
	"github.com/classync/classync/core/space"
	"github.com/classync/classync/core/task"
	"github.com/classync/classync/core/user"
	"github.com/classync/classync/services/email"
	"github.com/classync/classync/services/filestore/local"
	"github.com/classync/classync/services/logger"
	"github.com/classync/classync/services/realtime"
	"github.com/classync/classync/storage/database/inmem"
	"github.com/classync/classync/storage/outbox"
	"github.com/classync/classync/tests"
)

var (
	conf       *core.Config
	db         *inmemdb.DB
	app        *echoapi.Server
	hub        *realtime.Hub
	usrRepo    user.Repository
	spaceRepo  space.Repository
	taskRepo   task.Repository
	notifRepo  notification.Repository
	dispatcher *notification.Dispatcher

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

func TestMain(m *testing.M) {
	conf = core.NewTestConfig()
	logger := logsvc.NewTestLogger(io.Discard)

	tmpDir, err := os.MkdirTemp("", "classync-api-")
	if err != nil {
		fmt.Printf("os.MkdirTemp(): %v", err)
		os.Exit(1)
	}

	// validation & templates
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	space.InitValidators(validate, translator)
	task.InitValidators(validate, translator)
	core.ParseEmailTemplates(assets.FS, logger, true)

	// set up DB & repos
	db = inmemdb.NewDB()
	usrRepo = inmemdb.NewUserRepository(db)
	spaceRepo = inmemdb.NewSpaceRepository(db)
	taskRepo = inmemdb.NewTaskRepository(db)
	notifRepo = inmemdb.NewNotificationRepository(db)

	box, err := outbox.Open(filepath.Join(tmpDir, "outbox.db"))
	if err != nil {
		fmt.Printf("outbox.Open(): %v", err)
		os.Exit(1)
	}
	files, err := localstore.New(filepath.Join(tmpDir, "media"), "/media")
	if err != nil {
		fmt.Printf("localstore.New(): %v", err)
		os.Exit(1)
	}

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	usrSvc := user.NewServiceMock(usrRepo, mailSvc, conf)
	hub = realtime.NewHub(0)
	dispatcher = notification.NewDispatcher(notification.DispatcherDeps{
		Repo:   notifRepo,
		Hub:    hub,
		Outbox: box,
		Logger: logger,
		Now:    core.UTCNow,
	})
	taskSvc := task.NewService(task.Deps{
		Repo:   taskRepo,
		Spaces: spaceRepo,
		Files:  files,
		Sink:   dispatcher,
		Logger: logger,
		Now:    core.UTCNow,
	})

	// set up server
	app = echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         logger,
		DisableReqLogs: true,
		UserSvc:        usrSvc,
		SpaceSvc:       space.NewService(spaceRepo, core.UTCNow),
		TaskSvc:        taskSvc,
		NotifSvc:       notification.NewService(notifRepo),
		Hub:            hub,
		Validate:       validate,
		Translator:     translator,
	})

	// run tests
	code := m.Run()

	// clean up
	if err = box.Close(); err != nil {
		fmt.Printf("box.Close(): %v", err)
	}
	_ = os.RemoveAll(tmpDir)

	os.Exit(code)
}

func resetDB(t *testing.T) {
	testutil.ResetDB(t, db)
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
	ordered  bool // lists must match in order
	extra    interface{}
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
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

type formFile struct {
	name    string
	content []byte
}

func newMultipartRequest(
	t *testing.T,
	path, token string,
	fields map[string]string,
	files ...formFile,
) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField(): %v", err)
		}
	}
	for _, f := range files {
		fw, err := w.CreateFormFile("files", f.name)
		if err != nil {
			t.Fatalf("CreateFormFile(): %v", err)
		}
		if _, err = fw.Write(f.content); err != nil {
			t.Fatalf("Write(): %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("multipart.Close(): %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func getToken(t *testing.T, usr user.User) string {
	token, err := echoapi.NewToken(conf, usr)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList(): %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal(%s): %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte, ordered bool) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	l1, ok1 := j1.([]interface{})
	l2, ok2 := j2.([]interface{})
	if ordered || !ok1 || !ok2 {
		return false, nil
	}
	return assert.ElementsMatch(t, l1, l2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData, tt.ordered)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runTests(t *testing.T, tests []httpTest) {
	for _, tt := range tests {
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
