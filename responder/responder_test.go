package responder_test

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bvisness/hello/responder"
	"github.com/theothertomelliott/must"
)

// syncBuffer is safe for the concurrent writes of a live server.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{name: "root", method: http.MethodGet, target: "/"},
		{name: "nested with query", method: http.MethodGet, target: "/foo/bar?x=1"},
		{name: "deeply nested", method: http.MethodGet, target: "/a/b/c/d/e/f/g"},
		{name: "escaped characters", method: http.MethodGet, target: "/%7Euser/a%20b?q=%26"},
		{name: "double slashes", method: http.MethodGet, target: "//x//y/"},
		{name: "post with body", method: http.MethodPost, target: "/", body: "ignored entirely"},
		{name: "delete", method: http.MethodDelete, target: "/thing/1"},
		{name: "custom method", method: "BREW", target: "/pot"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var out bytes.Buffer
			h := responder.Handler(&out)

			req := httptest.NewRequest(test.method, test.target, strings.NewReader(test.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			must.BeEqual(t, http.StatusOK, rec.Code, "status was not as expected")
			must.BeEqual(t, "Hello World!", rec.Body.String(), "body was not as expected")
			must.BeEqual(t, fmt.Sprintf("Received request for URL: %s\n", test.target), out.String(), "log line was not as expected")
		})
	}
}

func TestHandlerIsStateless(t *testing.T) {
	var out bytes.Buffer
	h := responder.Handler(&out)

	var bodies []string
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/same", nil))
		must.BeEqual(t, http.StatusOK, rec.Code, "status was not as expected")
		bodies = append(bodies, rec.Body.String())
	}

	must.BeEqual(t, bodies[0], bodies[1], "repeated requests got different bodies")
	must.BeEqual(t, "Received request for URL: /same\nReceived request for URL: /same\n", out.String(), "log was not as expected")
}

func startServer(t *testing.T) (string, *syncBuffer) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	out := &syncBuffer{}
	srv := responder.New(out)
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })

	return l.Addr().String(), out
}

// rawRequest writes req on a fresh connection and returns the parsed
// response with its body read.
func rawRequest(t *testing.T, addr, req string) (*http.Response, string) {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := io.WriteString(conn, req); err != nil {
		t.Fatal(err)
	}

	res, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	return res, string(body)
}

func TestServerLogsRawTarget(t *testing.T) {
	addr, out := startServer(t)

	tests := []struct {
		name   string
		req    string
		target string
	}{
		{
			name:   "root",
			req:    "GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n",
			target: "/",
		},
		{
			name:   "query string",
			req:    "GET /foo/bar?x=1 HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n",
			target: "/foo/bar?x=1",
		},
		{
			name:   "post with body",
			req:    "POST / HTTP/1.1\r\nHost: x\r\nConnection: close\r\nContent-Length: 5\r\n\r\nhello",
			target: "/",
		},
		{
			name:   "options asterisk",
			req:    "OPTIONS * HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n",
			target: "*",
		},
		{
			name:   "absolute form",
			req:    "GET http://example.com/abs?y=2 HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n",
			target: "http://example.com/abs?y=2",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			res, body := rawRequest(t, addr, test.req)

			must.BeEqual(t, http.StatusOK, res.StatusCode, "status was not as expected")
			must.BeEqual(t, "Hello World!", body, "body was not as expected")
			must.BeEqual(t, true, strings.Contains(out.String(), "Received request for URL: "+test.target+"\n"), "log did not contain the request target")
		})
	}
}

func TestServerConcurrentRequests(t *testing.T) {
	addr, _ := startServer(t)

	// Hold one request mid-head so its connection is in flight.
	stalled, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer stalled.Close()
	if _, err := io.WriteString(stalled, "GET /first HTTP/1.1\r\nHost: x\r\n"); err != nil {
		t.Fatal(err)
	}

	client := &http.Client{Timeout: 2 * time.Second}
	res, err := client.Get("http://" + addr + "/second")
	must.BeNoError(t, err, "second request blocked behind the first")
	if err != nil {
		return
	}
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	must.BeEqual(t, "Hello World!", string(body), "second body was not as expected")

	stalled.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.WriteString(stalled, "Connection: close\r\n\r\n"); err != nil {
		t.Fatal(err)
	}
	first, err := http.ReadResponse(bufio.NewReader(stalled), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Body.Close()
	firstBody, _ := io.ReadAll(first.Body)
	must.BeEqual(t, http.StatusOK, first.StatusCode, "first status was not as expected")
	must.BeEqual(t, "Hello World!", string(firstBody), "first body was not as expected")
}

func TestServerManyParallelClients(t *testing.T) {
	addr, out := startServer(t)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := http.Get(fmt.Sprintf("http://%s/client/%d", addr, i))
			if err != nil {
				errs <- err
				return
			}
			defer res.Body.Close()
			body, _ := io.ReadAll(res.Body)
			if string(body) != responder.Body {
				errs <- fmt.Errorf("client %d got body %q", i, body)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	must.BeEqual(t, n, len(lines), "expected one log line per request")
	for _, line := range lines {
		if !strings.HasPrefix(line, "Received request for URL: /client/") {
			t.Errorf("unexpected log line %q", line)
		}
	}
}

func TestListenAndServeBindFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	srv := responder.New(io.Discard)
	srv.Addr = l.Addr().String()

	err = srv.ListenAndServe()
	if err == nil {
		t.Fatal("expected an error binding an occupied port")
	}
	must.BeEqual(t, true, strings.HasPrefix(err.Error(), "listen on "+srv.Addr), "error was not wrapped as expected")
}

func TestNewBindsFixedPort(t *testing.T) {
	srv := responder.New(io.Discard)
	must.BeEqual(t, ":8080", srv.Addr, "address was not as expected")
	must.BeEqual(t, fmt.Sprintf(":%d", responder.Port), responder.Addr, "Addr and Port disagree")
}
