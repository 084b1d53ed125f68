package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/studynotes/internal/i18n"
	"github.com/pavelanni/studynotes/internal/llm"
	"github.com/pavelanni/studynotes/internal/model"
	"github.com/pavelanni/studynotes/internal/session"
	"github.com/pavelanni/studynotes/internal/store"
	"github.com/pavelanni/studynotes/internal/study"
)

func TestMain(m *testing.M) {
	if err := appI18n.Init("en"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

type fakeLLM struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
}

func (f *fakeLLM) Complete(_ context.Context, _ string, _ llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", errors.New("no reply queued")
	}
	out := f.replies[0]
	f.replies = f.replies[1:]
	return out, nil
}

func quizText(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "%d. Which number is %d?\nA) %d\nB) %d\nC) %d\nD) %d\nAnswer: B\nExplanation: It is %d.\n\n", i, i, i+100, i, i+200, i+300, i)
	}
	return b.String()
}

type testEnv struct {
	t      *testing.T
	srv    *httptest.Server
	client *http.Client
	base   string
	llm    *fakeLLM
	store  *store.Store
}

type envOptions struct {
	serverKey string
	password  string
	basePath  string
}

func newTestEnv(t *testing.T, f *fakeLLM, opts envOptions) *testEnv {
	t.Helper()

	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	svc := study.New(f, st, study.Config{ServerKey: opts.serverKey})
	cfg := model.AppConfig{
		BasePath:       opts.basePath,
		ServerKey:      opts.serverKey != "",
		AccessPassword: opts.password != "",
		SessionTTL:     time.Hour,
		MaxUploadBytes: 1 << 10,
	}
	var hash []byte
	if opts.password != "" {
		hash, err = bcrypt.GenerateFromPassword([]byte(opts.password), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("bcrypt: %v", err)
		}
	}
	h, err := New(st, svc, session.NewRegistry(time.Hour), cfg, hash)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r := chi.NewRouter()
	r.Use(appI18n.Middleware())
	h.Mount(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar, _ := cookiejar.New(nil)
	return &testEnv{
		t:      t,
		srv:    srv,
		client: &http.Client{Jar: jar},
		base:   srv.URL + opts.basePath,
		llm:    f,
		store:  st,
	}
}

func (e *testEnv) csrf() string {
	u, _ := url.Parse(e.base + "/")
	for _, c := range e.client.Jar.Cookies(u) {
		if c.Name == csrfCookieName {
			return c.Value
		}
	}
	return ""
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func (e *testEnv) get(path string) (*http.Response, string) {
	e.t.Helper()
	resp, err := e.client.Get(e.base + path)
	if err != nil {
		e.t.Fatalf("GET %s: %v", path, err)
	}
	return resp, readBody(e.t, resp)
}

func (e *testEnv) post(path string, form url.Values) (*http.Response, string) {
	e.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", e.csrf())
	resp, err := e.client.PostForm(e.base+path, form)
	if err != nil {
		e.t.Fatalf("POST %s: %v", path, err)
	}
	return resp, readBody(e.t, resp)
}

func (e *testEnv) upload(name, content string) (*http.Response, string) {
	e.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("csrf_token", e.csrf())
	fw, err := mw.CreateFormFile("transcript", name)
	if err != nil {
		e.t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = io.WriteString(fw, content)
	_ = mw.Close()

	resp, err := e.client.Post(e.base+"/transcript", mw.FormDataContentType(), &buf)
	if err != nil {
		e.t.Fatalf("upload: %v", err)
	}
	return resp, readBody(e.t, resp)
}

func mustContain(t *testing.T, body string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(body, want) {
			t.Errorf("page should contain %q", want)
		}
	}
}

func TestFullFlow(t *testing.T) {
	f := &fakeLLM{replies: []string{"The summary.", "Goroutines are cheap threads.", quizText(10)}}
	e := newTestEnv(t, f, envOptions{})

	resp, body := e.get("/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET / status %d", resp.StatusCode)
	}
	mustContain(t, body, "Study Notes &amp; Quiz", `name="transcript"`, `name="api_key"`)

	_, body = e.upload("lecture.txt", "Today we discuss goroutines.")
	mustContain(t, body, "Transcript: lecture.txt (28 characters)", "Generate notes and quiz")

	_, body = e.post("/key", url.Values{"api_key": {"gsk_test"}})
	mustContain(t, body, "API key saved for this session.")

	_, body = e.post("/generate", nil)
	mustContain(t, body, "The quiz is ready.", "Goroutines are cheap threads.", "Which number is 1?", "Which number is 10?")
	if f.calls != 3 {
		t.Errorf("expected 3 LLM calls, got %d", f.calls)
	}

	_, body = e.post("/quiz/answer/0", url.Values{"q0": {"1"}})
	mustContain(t, body, "1 question answered")

	_, body = e.post("/quiz/submit", url.Values{"q1": {"1"}, "q2": {"0"}})
	mustContain(t, body, "Quiz submitted.", "Your score: 2/10", "Correct answer: B) 1", "It is 1.",
		"Quiz taken once on this transcript.")

	results, err := e.store.ListResults()
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(results) != 1 || results[0].Score != 2 || results[0].TranscriptName != "lecture.txt" {
		t.Errorf("unexpected recorded results: %+v", results)
	}

	resp, body = e.get("/export/generated_quiz.pdf")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("quiz PDF status %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "application/pdf" {
		t.Errorf("content type %q", resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(resp.Header.Get("Content-Disposition"), "generated_quiz.pdf") {
		t.Errorf("content disposition %q", resp.Header.Get("Content-Disposition"))
	}
	if !strings.HasPrefix(body, "%PDF-") {
		t.Error("quiz export is not a PDF")
	}

	resp, body = e.get("/export/study_notes.pdf")
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(body, "%PDF-") {
		t.Errorf("notes PDF status %d", resp.StatusCode)
	}

	// A download in between must not invalidate the forms on the page.
	_, body = e.post("/reset", nil)
	mustContain(t, body, `name="transcript"`)
	if strings.Contains(body, "Goroutines are cheap threads.") {
		t.Error("reset should clear the notes")
	}
}

func TestGenerateWithoutKey(t *testing.T) {
	f := &fakeLLM{}
	e := newTestEnv(t, f, envOptions{})

	e.get("/")
	e.upload("lecture.txt", "content")
	_, body := e.post("/generate", nil)
	mustContain(t, body, "Enter an API key first.")
	if f.calls != 0 {
		t.Errorf("no LLM call expected, got %d", f.calls)
	}
}

func TestServerKeyHidesKeyForm(t *testing.T) {
	f := &fakeLLM{replies: []string{"s", "notes", quizText(3)}}
	e := newTestEnv(t, f, envOptions{serverKey: "server"})

	_, body := e.get("/")
	if strings.Contains(body, `name="api_key"`) {
		t.Error("key form should be hidden when the server has a key")
	}

	e.upload("lecture.txt", "content")
	_, body = e.post("/generate", nil)
	mustContain(t, body, "Only 3 of 10 questions could be read from the LLM response.")
}

func TestLLMErrorsAreReported(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"auth", &llm.CallError{Kind: llm.KindAuth, Err: errors.New("401")}, "The API key was rejected."},
		{"rate limit", &llm.CallError{Kind: llm.KindRateLimit, Err: errors.New("429")}, "rate limiting requests"},
		{"network", &llm.CallError{Kind: llm.KindNetwork, Err: errors.New("dial")}, "Could not reach the LLM service."},
		{"other", &llm.CallError{Kind: llm.KindOther, Err: errors.New("500")}, "The LLM service returned an error."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, &fakeLLM{err: tt.err}, envOptions{serverKey: "k"})
			e.get("/")
			e.upload("lecture.txt", "content")
			_, body := e.post("/generate", nil)
			mustContain(t, body, tt.want, "Generate notes and quiz")
		})
	}
}

func TestParseFailureKeepsNotes(t *testing.T) {
	f := &fakeLLM{replies: []string{"s", "Kept notes.", "Sorry, no quiz today."}}
	e := newTestEnv(t, f, envOptions{serverKey: "k"})

	e.get("/")
	e.upload("lecture.txt", "content")
	_, body := e.post("/generate", nil)
	mustContain(t, body, "No quiz questions could be read", "Kept notes.", "Generate quiz", "Regenerate notes")

	f.mu.Lock()
	f.replies = []string{quizText(10)}
	f.mu.Unlock()
	_, body = e.post("/quiz", nil)
	mustContain(t, body, "The quiz is ready.", "Which number is 10?")
}

func TestUploadErrors(t *testing.T) {
	e := newTestEnv(t, &fakeLLM{}, envOptions{})
	e.get("/")

	_, body := e.upload("blank.txt", "   \n")
	mustContain(t, body, "The transcript is empty.")

	_, body = e.upload("big.txt", strings.Repeat("x", 2<<10))
	mustContain(t, body, "The file is too large.")
}

func TestOrderingErrors(t *testing.T) {
	e := newTestEnv(t, &fakeLLM{}, envOptions{})
	e.get("/")

	_, body := e.post("/quiz/submit", nil)
	mustContain(t, body, "That action is not available right now.")

	resp, _ := e.get("/export/generated_quiz.pdf")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for empty quiz export, got %d", resp.StatusCode)
	}
}

func TestAnswerKeepsOtherSelections(t *testing.T) {
	f := &fakeLLM{replies: []string{"The summary.", "Notes.", quizText(10)}}
	e := newTestEnv(t, f, envOptions{serverKey: "gsk_server"})
	e.get("/")
	e.upload("lecture.txt", "Today we discuss goroutines.")
	e.post("/generate", nil)

	_, body := e.post("/quiz/answer/0", url.Values{"q0": {"1"}, "q1": {"2"}})
	mustContain(t, body, "2 questions answered")

	_, body = e.post("/quiz/answer/1", url.Values{"q0": {"x"}, "q1": {"0"}})
	mustContain(t, body, "That answer is not valid.")
}

func TestCSRFRequired(t *testing.T) {
	e := newTestEnv(t, &fakeLLM{}, envOptions{})
	e.get("/")

	resp, err := e.client.PostForm(e.base+"/reset", url.Values{})
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 without token, got %d", resp.StatusCode)
	}

	resp, err = e.client.PostForm(e.base+"/reset", url.Values{"csrf_token": {"wrong"}})
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 with bad token, got %d", resp.StatusCode)
	}
}

func TestAccessPassword(t *testing.T) {
	e := newTestEnv(t, &fakeLLM{}, envOptions{password: "letmein"})

	resp, body := e.get("/")
	if resp.Request.URL.Path != "/login" {
		t.Fatalf("expected redirect to /login, got %s", resp.Request.URL.Path)
	}
	mustContain(t, body, `type="password"`)

	resp, body = e.post("/login", url.Values{"password": {"nope"}})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong password: status %d", resp.StatusCode)
	}
	mustContain(t, body, "Wrong password.")

	resp, body = e.post("/login", url.Values{"password": {"letmein"}})
	if resp.StatusCode != http.StatusOK || resp.Request.URL.Path != "/" {
		t.Fatalf("login should land on /, got %d %s", resp.StatusCode, resp.Request.URL.Path)
	}
	mustContain(t, body, `name="transcript"`, "Log out")

	resp, _ = e.post("/logout", nil)
	if resp.Request.URL.Path != "/login" {
		t.Errorf("logout should redirect to /login, got %s", resp.Request.URL.Path)
	}
	resp, _ = e.get("/")
	if resp.Request.URL.Path != "/login" {
		t.Errorf("after logout / should require login, got %s", resp.Request.URL.Path)
	}
}

func TestBasePath(t *testing.T) {
	e := newTestEnv(t, &fakeLLM{}, envOptions{basePath: "/notes"})

	resp, body := e.get("/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /notes/ status %d", resp.StatusCode)
	}
	mustContain(t, body, `action="/notes/transcript?csrf_token=`, `href="/notes/lang/ru"`)

	_, body = e.upload("lecture.txt", "content")
	mustContain(t, body, "Transcript: lecture.txt")
}

func TestLanguageSwitch(t *testing.T) {
	e := newTestEnv(t, &fakeLLM{}, envOptions{})

	_, body := e.get("/lang/ru")
	mustContain(t, body, "Конспект и тест", `lang="ru"`)

	_, body = e.get("/lang/xx")
	mustContain(t, body, "Конспект и тест")
}
