package reporting_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"ad-reporting-engine/internal/reporting"
)

type executorFunc func(ctx context.Context, in reporting.ScriptInput) (reporting.ScriptResult, error)

func (f executorFunc) Execute(ctx context.Context, in reporting.ScriptInput) (reporting.ScriptResult, error) {
	return f(ctx, in)
}

// scripts serves script bodies by uri and counts fetches.
type scripts struct {
	mu      sync.Mutex
	bodies  map[string]string
	fetches map[string]int
	block   bool
}

func newScripts(bodies map[string]string) *scripts {
	return &scripts{bodies: bodies, fetches: map[string]int{}}
}

func (s *scripts) FetchScript(ctx context.Context, uri string, _ bool) (string, error) {
	s.mu.Lock()
	s.fetches[uri]++
	body, ok := s.bodies[uri]
	block := s.block
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if !ok {
		return "", errors.New("404 not found")
	}
	return body, nil
}

func (s *scripts) count(uri string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[uri]
}

// reportServer is a TLS ad tech endpoint at 127.0.0.1 recording GET paths.
type reportServer struct {
	*httptest.Server
	mu    sync.Mutex
	paths []string
}

func newReportServer(t *testing.T) *reportServer {
	t.Helper()
	rs := &reportServer{}
	rs.Server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		rs.paths = append(rs.paths, r.URL.Path)
		rs.mu.Unlock()
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *reportServer) received() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]string(nil), rs.paths...)
}

// httpNotifier issues real GETs through the test server's trusted client.
type httpNotifier struct{ client *http.Client }

func (n httpNotifier) Notify(ctx context.Context, uri string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return err
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// countDownLatch releases Wait once Done has been called n times.
type countDownLatch struct {
	wg sync.WaitGroup
}

func newCountDownLatch(n int) *countDownLatch {
	l := &countDownLatch{}
	l.wg.Add(n)
	return l
}

func (l *countDownLatch) Done() { l.wg.Done() }

func (l *countDownLatch) Wait() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(ch)
	}()
	return ch
}

type failingBeacons struct{ reporting.BeaconStore }

func (failingBeacons) SafelyInsertBeacons(context.Context, int64, reporting.Destination, []reporting.InteractionBeacon, int64, int64) (int, error) {
	return 0, errors.New("disk full")
}
