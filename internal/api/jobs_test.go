package api

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

type resultReply struct {
	Status string          `json:"status"`
	Reason string          `json:"reason"`
	Data   json.RawMessage `json:"data"`
}

func submit(t *testing.T, base, kind string, body map[string]string) int64 {
	t.Helper()
	resp := postJSON(t, base+"/api/"+kind, body)
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("POST /api/%s status = %d, want 200", kind, resp.StatusCode)
	}
	var out submitResponse
	decodeBody(t, resp, &out)
	return out.JobID
}

func getResult(t *testing.T, base string, id int64) (int, resultReply) {
	t.Helper()
	resp, err := http.Get(base + "/api/get_results/" + strconv.FormatInt(id, 10))
	if err != nil {
		t.Fatalf("GET get_results: %v", err)
	}
	var out resultReply
	code := resp.StatusCode
	decodeBody(t, resp, &out)
	return code, out
}

// waitDone polls get_results until the job reports done.
func waitDone(t *testing.T, base string, id int64) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		code, out := getResult(t, base, id)
		if code != http.StatusOK {
			t.Fatalf("get_results status = %d, want 200", code)
		}
		if out.Status == replyDone {
			return out.Data
		}
		if out.Status != replyRunning {
			t.Fatalf("get_results status field = %q", out.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %d did not finish", id)
	return nil
}

func TestSubmitAndGetResult(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	id := submit(t, ts.URL, "state_mean", map[string]string{"state": "Wyoming", "question": obesity})
	if id != 1 {
		t.Errorf("job_id = %d, want 1", id)
	}

	var data map[string]float64
	if err := json.Unmarshal(waitDone(t, ts.URL, id), &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if got := data["Wyoming"]; math.Abs(got-30) > 1e-9 {
		t.Errorf("Wyoming mean = %v, want 30", got)
	}
}

func TestSubmitAssignsSequentialIDs(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for want := int64(1); want <= 5; want++ {
		got := submit(t, ts.URL, "states_mean", map[string]string{"question": obesity})
		if got != want {
			t.Errorf("job_id = %d, want %d", got, want)
		}
	}
}

func TestStatesMeanKeepsOrder(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	id := submit(t, ts.URL, "states_mean", map[string]string{"question": obesity})
	data := waitDone(t, ts.URL, id)

	if got, want := string(data), `{"Wyoming":30,"Ohio":33}`; got != want {
		t.Errorf("data = %s, want %s", got, want)
	}
}

func TestSubmitValidation(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		name string
		kind string
		body map[string]string
	}{
		{"missing question", "states_mean", map[string]string{}},
		{"missing state", "state_mean", map[string]string{"question": obesity}},
		{"missing state for category", "state_mean_by_category", map[string]string{"question": obesity}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/api/"+tt.kind, tt.body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}

	resp, err := http.Post(ts.URL+"/api/states_mean", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty body status = %d, want 400", resp.StatusCode)
	}
}

func TestGetResultInvalidJobID(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	submit(t, ts.URL, "states_mean", map[string]string{"question": obesity})

	for _, path := range []string{"/api/get_results/0", "/api/get_results/2", "/api/get_results/-1", "/api/get_results/abc"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		var out resultReply
		code := resp.StatusCode
		decodeBody(t, resp, &out)

		if code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, code)
		}
		if out.Status != replyError || out.Reason != reasonInvalidJobID {
			t.Errorf("%s: body = %+v, want error/%q", path, out, reasonInvalidJobID)
		}
	}
}

func TestSubmitUnknownKind(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/median", map[string]string{"question": obesity})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}

	// Nothing was queued for the unknown kind.
	if got := srv.engine.Stats().Total; got != 0 {
		t.Errorf("jobs recorded = %d, want 0", got)
	}
}

func TestMissingDataCompletesWithNull(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		kind string
		body map[string]string
		want string
	}{
		{"state_mean", map[string]string{"state": "Wyomin", "question": obesity}, `{"Wyomin":null}`},
		{"global_mean", map[string]string{"question": "no such question"}, `{"global_mean":null}`},
		{"states_mean", map[string]string{"question": "no such question"}, `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			id := submit(t, ts.URL, tt.kind, tt.body)
			if got := string(waitDone(t, ts.URL, id)); got != tt.want {
				t.Errorf("data = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestGetResultRunningWhileBlocked(t *testing.T) {
	release := make(chan struct{})
	srv := newTestServerWithRegistry(t, blockingRegistry(t, release))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()
	defer func() {
		select {
		case <-release:
		default:
			close(release)
		}
	}()

	id := submit(t, ts.URL, "global_mean", map[string]string{"question": obesity})

	code, out := getResult(t, ts.URL, id)
	if code != http.StatusOK || out.Status != replyRunning {
		t.Errorf("before release: status = %d/%q, want 200/%q", code, out.Status, replyRunning)
	}

	close(release)
	if got := string(waitDone(t, ts.URL, id)); got != `{"global_mean":1}` {
		t.Errorf("data = %s", got)
	}
}

func TestListJobsAndNumJobs(t *testing.T) {
	release := make(chan struct{})
	srv := newTestServerWithRegistry(t, blockingRegistry(t, release))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	// Two workers: two jobs block, the third waits in the queue.
	for range 3 {
		submit(t, ts.URL, "global_mean", map[string]string{"question": obesity})
	}

	resp, err := http.Get(ts.URL + "/api/jobs")
	if err != nil {
		t.Fatalf("GET /api/jobs: %v", err)
	}
	var jobs struct {
		Status string                       `json:"status"`
		Data   []map[string]json.RawMessage `json:"data"`
	}
	decodeBody(t, resp, &jobs)

	if jobs.Status != replyDone {
		t.Errorf("status = %q, want %q", jobs.Status, replyDone)
	}
	if len(jobs.Data) != 3 {
		t.Fatalf("len(data) = %d, want 3", len(jobs.Data))
	}
	for i, entry := range jobs.Data {
		key := strconv.Itoa(i + 1)
		raw, ok := entry[key]
		if !ok {
			t.Fatalf("entry %d missing key %q: %v", i, key, entry)
		}
		var rec struct {
			ID       int64  `json:"id"`
			TaskType string `json:"task_type"`
			Status   string `json:"status"`
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			t.Fatalf("decode record: %v", err)
		}
		if rec.ID != int64(i+1) || rec.TaskType != "global_mean" {
			t.Errorf("record %d = %+v", i, rec)
		}
	}

	resp, err = http.Get(ts.URL + "/api/num_jobs")
	if err != nil {
		t.Fatalf("GET /api/num_jobs: %v", err)
	}
	var num numJobsResponse
	decodeBody(t, resp, &num)
	if num.Status != replyDone {
		t.Errorf("num_jobs status = %q", num.Status)
	}
	if num.RemainingJobs < 1 || num.RemainingJobs > 3 {
		t.Errorf("remaining_jobs = %d, want 1..3", num.RemainingJobs)
	}

	close(release)
	for id := int64(1); id <= 3; id++ {
		waitDone(t, ts.URL, id)
	}

	resp, err = http.Get(ts.URL + "/api/num_jobs")
	if err != nil {
		t.Fatalf("GET /api/num_jobs: %v", err)
	}
	decodeBody(t, resp, &num)
	if num.RemainingJobs != 0 {
		t.Errorf("remaining_jobs after completion = %d, want 0", num.RemainingJobs)
	}
}

func TestGracefulShutdown(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	var ids []int64
	for range 10 {
		ids = append(ids, submit(t, ts.URL, "best5", map[string]string{"question": obesity}))
	}

	resp, err := http.Get(ts.URL + "/api/graceful_shutdown")
	if err != nil {
		t.Fatalf("GET /api/graceful_shutdown: %v", err)
	}
	var out resultReply
	decodeBody(t, resp, &out)
	if out.Status != replyDone {
		t.Errorf("shutdown status = %q, want %q", out.Status, replyDone)
	}

	// Every job accepted before shutdown has a result.
	for _, id := range ids {
		code, res := getResult(t, ts.URL, id)
		if code != http.StatusOK || res.Status != replyDone {
			t.Errorf("job %d: %d/%q, want 200/done", id, code, res.Status)
		}
	}

	resp = postJSON(t, ts.URL+"/api/best5", map[string]string{"question": obesity})
	var rejected resultReply
	code := resp.StatusCode
	decodeBody(t, resp, &rejected)
	if code != http.StatusServiceUnavailable {
		t.Errorf("submit after shutdown status = %d, want 503", code)
	}
	if rejected.Status != replyError || rejected.Reason != reasonShuttingDown {
		t.Errorf("submit after shutdown body = %+v", rejected)
	}

	// A second shutdown request is harmless.
	resp, err = http.Get(ts.URL + "/api/graceful_shutdown")
	if err != nil {
		t.Fatalf("GET /api/graceful_shutdown: %v", err)
	}
	decodeBody(t, resp, &out)
	if out.Status != replyDone {
		t.Errorf("second shutdown status = %q, want %q", out.Status, replyDone)
	}
}

func TestTasksAndStats(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/tasks")
	if err != nil {
		t.Fatalf("GET /api/tasks: %v", err)
	}
	var list tasksResponse
	decodeBody(t, resp, &list)
	if len(list.Tasks) != 9 {
		t.Errorf("len(tasks) = %d, want 9", len(list.Tasks))
	}
	for _, ti := range list.Tasks {
		if ti.Name == "state_mean" && !ti.NeedsState {
			t.Error("state_mean should need a state")
		}
		if ti.Name == "best5" && ti.NeedsState {
			t.Error("best5 should not need a state")
		}
	}

	id := submit(t, ts.URL, "global_mean", map[string]string{"question": obesity})
	waitDone(t, ts.URL, id)

	resp, err = http.Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatalf("GET /api/stats: %v", err)
	}
	var stats statsResponse
	decodeBody(t, resp, &stats)
	if stats.NodeID != testNodeID {
		t.Errorf("node_id = %q, want %q", stats.NodeID, testNodeID)
	}
	if stats.Total != 1 || stats.ByStatus["completed"] != 1 || stats.ByTaskType["global_mean"] != 1 {
		t.Errorf("stats = %+v", stats.Stats)
	}
	if stats.Workers != 2 {
		t.Errorf("workers = %d, want 2", stats.Workers)
	}
}
