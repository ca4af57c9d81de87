// Package telegramtest provides a fake Bot API server for tests.
package telegramtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
)

const Token = "123456:test-token"

// Request is one recorded Bot API call with its form fields.
type Request struct {
	Method string
	Params map[string]string
}

type failure struct {
	code        int
	description string
}

// Server records every call and answers with minimal successful results
// unless a failure was queued for the method.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	requests []Request
	failures map[string][]failure
	nextID   int
}

func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{failures: make(map[string][]failure)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Bot returns a client pointed at the server. getMe is skipped.
func (s *Server) Bot(t testing.TB, opts ...bot.Option) *bot.Bot {
	t.Helper()
	opts = append([]bot.Option{bot.WithServerURL(s.URL), bot.WithSkipGetMe()}, opts...)
	b, err := bot.New(Token, opts...)
	if err != nil {
		t.Fatalf("create bot: %v", err)
	}
	return b
}

// Fail makes the next call to method fail with the given Bot API error.
func (s *Server) Fail(method string, code int, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = append(s.failures[method], failure{code: code, description: description})
}

// Requests returns recorded calls to method, or all calls when method is empty.
func (s *Server) Requests(method string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, r := range s.requests {
		if method == "" || r.Method == method {
			out = append(out, r)
		}
	}
	return out
}

// Texts returns the text of every sendMessage and editMessageText call, in order.
func (s *Server) Texts() []string {
	var out []string
	for _, r := range s.Requests("") {
		if r.Method == "sendMessage" || r.Method == "editMessageText" {
			out = append(out, r.Params["text"])
		}
	}
	return out
}

func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	params := make(map[string]string)
	if err := r.ParseMultipartForm(1 << 20); err == nil && r.MultipartForm != nil {
		for k, v := range r.MultipartForm.Value {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
	} else if err := r.ParseForm(); err == nil {
		for k := range r.PostForm {
			params[k] = r.PostForm.Get(k)
		}
	}

	s.mu.Lock()
	s.requests = append(s.requests, Request{Method: method, Params: params})
	var fail *failure
	if queued := s.failures[method]; len(queued) > 0 {
		fail = &queued[0]
		s.failures[method] = queued[1:]
	}
	s.nextID++
	messageID := s.nextID
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if fail != nil {
		w.WriteHeader(fail.code)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":          false,
			"error_code":  fail.code,
			"description": fail.description,
		})
		return
	}

	var result any = true
	switch method {
	case "sendMessage", "editMessageText":
		chatID, _ := strconv.ParseInt(params["chat_id"], 10, 64)
		result = map[string]any{
			"message_id": messageID,
			"date":       0,
			"chat":       map[string]any{"id": chatID, "type": "private"},
			"text":       params["text"],
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

// String renders recorded calls for assertion messages.
func (s *Server) String() string {
	var b strings.Builder
	for _, r := range s.Requests("") {
		fmt.Fprintf(&b, "%s %v\n", r.Method, r.Params)
	}
	return b.String()
}
