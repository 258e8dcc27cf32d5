package taskarchsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func TestClientRoundTrip(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/tasks":
			fmt.Fprint(w, `[{"id":"1","title":"A","completed":false,"is_ai_generated":false}]`)
		case r.Method == http.MethodPut && r.URL.Path == "/api/tasks/1":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["completed"] != true {
				http.Error(w, "bad body", http.StatusBadRequest)
				return
			}
			if _, ok := body["title"]; ok {
				http.Error(w, "title should be omitted", http.StatusBadRequest)
				return
			}
			fmt.Fprint(w, `{"id":"1","title":"A","completed":true,"is_ai_generated":false}`)
		case r.Method == http.MethodPost && r.URL.Path == "/api/tasks/generate":
			fmt.Fprint(w, `[{"id":"2","title":"x","is_ai_generated":true,"parent_prompt":"goal"},{"id":"3","title":"y","is_ai_generated":true,"parent_prompt":"goal"}]`)
		case r.Method == http.MethodDelete && r.URL.Path == "/api/tasks/1":
			fmt.Fprint(w, `{"message":"Task deleted successfully"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL + "/api/")
	c.BearerToken = "tok"
	ctx := context.Background()
	tasks, err := c.ListTasks(ctx)
	if err != nil || len(tasks) != 1 || tasks[0].Title != "A" {
		t.Fatalf("list: %+v %v", tasks, err)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	task, err := c.SetCompleted(ctx, "1", true)
	if err != nil || !task.Completed {
		t.Fatalf("set completed: %+v %v", task, err)
	}
	gen, err := c.GenerateTasks(ctx, "goal")
	if err != nil || len(gen) != 2 || gen[1].ID != "3" || *gen[0].ParentPrompt != "goal" {
		t.Fatalf("generate: %+v %v", gen, err)
	}
	if err := c.DeleteTask(ctx, "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestErrorClassification(t *testing.T) {
	status := http.StatusNotFound
	body := `{"error":{"code":"not_found","message":"task not found"}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/tasks" {
			fmt.Fprint(w, `{not json`)
			return
		}
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	defer srv.Close()
	c := New(srv.URL)
	ctx := context.Background()

	_, err := c.GetTask(ctx, "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "not_found" || apiErr.Message != "task not found" {
		t.Fatalf("expected parsed APIError, got %v", err)
	}
	if IsTransient(err) || !IsNotFound(err) {
		t.Fatalf("404 should be permanent not-found: %v", err)
	}

	for _, s := range []int{http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable} {
		status = s
		_, err := c.GetTask(ctx, "x")
		if !IsTransient(err) {
			t.Fatalf("status %d should be transient: %v", s, err)
		}
	}
	status = http.StatusBadRequest
	if _, err := c.CreateTask(ctx, " "); IsTransient(err) {
		t.Fatalf("400 should be permanent: %v", err)
	}

	_, err = c.ListTasks(ctx)
	var decErr *DecodeError
	if !errors.As(err, &decErr) || IsTransient(err) {
		t.Fatalf("expected permanent DecodeError, got %v", err)
	}
}

func TestTransportErrorsAreTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()
	_, err := New(addr).ListTasks(context.Background())
	if err == nil || !IsTransient(err) {
		t.Fatalf("expected transient transport error, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(addr).ListTasks(ctx); IsTransient(err) {
		t.Fatalf("cancellation should not be transient: %v", err)
	}
}

func TestClientConcurrentFirstCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":"1","title":"A"}]`)
	}))
	defer srv.Close()

	c := New(srv.URL)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tasks, err := c.ListTasks(context.Background())
			if err == nil && len(tasks) != 1 {
				err = fmt.Errorf("tasks = %+v", tasks)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("list: %v", err)
		}
	}
	if c.HTTPClient != nil {
		t.Fatal("calls should not store a default http client on the shared Client")
	}
}
