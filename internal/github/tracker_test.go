package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	gh "github.com/google/go-github/v84/github"
	"github.com/google/go-cmp/cmp"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/triagebot/internal/triage"
)

var testRef = triage.IssueRef{Owner: "acme", Repo: "widgets", Number: 42}

type recorded struct {
	Method string
	Path   string
	Body   string
}

// fakeAPI records every request and dispatches to per-route handlers keyed
// by "METHOD path".
type fakeAPI struct {
	mu       sync.Mutex
	requests []recorded
	routes   map[string]http.HandlerFunc
}

func newFakeAPI(t *testing.T, routes map[string]http.HandlerFunc) (*Tracker, *fakeAPI) {
	t.Helper()
	f := &fakeAPI{routes: routes}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recorded{Method: r.Method, Path: r.URL.Path, Body: string(b)})
		f.mu.Unlock()

		h, ok := f.routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"Not Found"}`)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	client := gh.NewClient(nil)
	u, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	client.BaseURL = u
	return New(client, log.Nop()), f
}

func (f *fakeAPI) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.requests))
	for _, r := range f.requests {
		out = append(out, r.Method+" "+r.Path)
	}
	return out
}

func (f *fakeAPI) body(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i].Body
}

func status(code int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		fmt.Fprint(w, body)
	}
}

func TestTracker_Issue(t *testing.T) {
	t.Parallel()

	tr, _ := newFakeAPI(t, map[string]http.HandlerFunc{
		"GET /repos/acme/widgets/issues/42": status(200, `{
			"number": 42,
			"title": "Crash on save",
			"body": "it crashes",
			"labels": [{"name": "bug"}, {"name": "needs-info"}]
		}`),
	})

	got, err := tr.Issue(context.Background(), testRef)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	want := &triage.IssueState{Title: "Crash on save", Body: "it crashes", Labels: []string{"bug", "needs-info"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("issue mismatch (-want +got):\n%s", diff)
	}
}

func TestTracker_Issue_Error(t *testing.T) {
	t.Parallel()

	tr, _ := newFakeAPI(t, map[string]http.HandlerFunc{
		"GET /repos/acme/widgets/issues/42": status(500, `{"message":"boom"}`),
	})
	if _, err := tr.Issue(context.Background(), testRef); err == nil {
		t.Fatal("expected error")
	}
}

func TestTracker_FindBotComments(t *testing.T) {
	t.Parallel()

	marked := triage.CommentMarker + "\nplease add details"
	notice := triage.RenderLowConfidenceComment(0.3)

	t.Run("paginates until both found", func(t *testing.T) {
		t.Parallel()
		tr, f := newFakeAPI(t, map[string]http.HandlerFunc{
			"GET /repos/acme/widgets/issues/42/comments": func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				if r.URL.Query().Get("page") == "2" {
					_ = json.NewEncoder(w).Encode([]map[string]any{
						{"id": 7, "body": marked},
						{"id": 8, "body": marked},
					})
					return
				}
				next := fmt.Sprintf("http://%s/repos/acme/widgets/issues/42/comments?page=2", r.Host)
				w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="next"`, next))
				_ = json.NewEncoder(w).Encode([]map[string]any{
					{"id": 1, "body": "me too"},
					{"id": 2, "body": notice},
				})
			},
		})

		got, err := tr.FindBotComments(context.Background(), testRef)
		if err != nil {
			t.Fatalf("FindBotComments: %v", err)
		}
		want := triage.BotComments{
			MissingInfo: &triage.BotComment{ID: 7, Body: marked},
			Notice:      &triage.BotComment{ID: 2, Body: notice},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("comments mismatch (-want +got):\n%s", diff)
		}
		if n := len(f.calls()); n != 2 {
			t.Errorf("requests = %d, want 2", n)
		}
	})

	t.Run("stops once both found", func(t *testing.T) {
		t.Parallel()
		tr, f := newFakeAPI(t, map[string]http.HandlerFunc{
			"GET /repos/acme/widgets/issues/42/comments": func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				next := fmt.Sprintf("http://%s/repos/acme/widgets/issues/42/comments?page=2", r.Host)
				w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="next"`, next))
				_ = json.NewEncoder(w).Encode([]map[string]any{
					{"id": 3, "body": notice},
					{"id": 4, "body": marked},
				})
			},
		})

		got, err := tr.FindBotComments(context.Background(), testRef)
		if err != nil {
			t.Fatalf("FindBotComments: %v", err)
		}
		if got.MissingInfo == nil || got.MissingInfo.ID != 4 || got.Notice == nil || got.Notice.ID != 3 {
			t.Errorf("got %+v", got)
		}
		if n := len(f.calls()); n != 1 {
			t.Errorf("requests = %d, want 1", n)
		}
	})

	t.Run("none", func(t *testing.T) {
		t.Parallel()
		tr, _ := newFakeAPI(t, map[string]http.HandlerFunc{
			"GET /repos/acme/widgets/issues/42/comments": status(200, `[{"id": 1, "body": "hello"}]`),
		})
		got, err := tr.FindBotComments(context.Background(), testRef)
		if err != nil {
			t.Fatalf("FindBotComments: %v", err)
		}
		if got.MissingInfo != nil || got.Notice != nil {
			t.Errorf("got %+v, want none", got)
		}
	})
}

func TestTracker_EnsureLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		label     string
		getStatus int
		create    http.HandlerFunc
		wantErr   bool
		wantCalls []string
		wantColor string
	}{
		{
			name:      "exists",
			label:     "bug",
			getStatus: 200,
			wantCalls: []string{"GET /repos/acme/widgets/labels/bug"},
		},
		{
			name:      "created with mapped color",
			label:     "needs-info",
			getStatus: 404,
			create:    status(201, `{"name":"needs-info"}`),
			wantCalls: []string{"GET /repos/acme/widgets/labels/needs-info", "POST /repos/acme/widgets/labels"},
			wantColor: "f9d0c4",
		},
		{
			name:      "created with default color",
			label:     "security",
			getStatus: 404,
			create:    status(201, `{"name":"security"}`),
			wantCalls: []string{"GET /repos/acme/widgets/labels/security", "POST /repos/acme/widgets/labels"},
			wantColor: "ededed",
		},
		{
			name:      "created concurrently",
			label:     "bug",
			getStatus: 404,
			create:    status(422, `{"message":"Validation Failed"}`),
			wantCalls: []string{"GET /repos/acme/widgets/labels/bug", "POST /repos/acme/widgets/labels"},
			wantColor: "d73a4a",
		},
		{
			name:      "create rejected",
			label:     "bug",
			getStatus: 404,
			create:    status(403, `{"message":"Forbidden"}`),
			wantErr:   true,
			wantCalls: []string{"GET /repos/acme/widgets/labels/bug", "POST /repos/acme/widgets/labels"},
			wantColor: "d73a4a",
		},
		{
			name:      "lookup failed",
			label:     "bug",
			getStatus: 500,
			wantErr:   true,
			wantCalls: []string{"GET /repos/acme/widgets/labels/bug"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			routes := map[string]http.HandlerFunc{
				"GET /repos/acme/widgets/labels/" + tc.label: status(tc.getStatus, `{"name":"`+tc.label+`"}`),
			}
			if tc.create != nil {
				routes["POST /repos/acme/widgets/labels"] = tc.create
			}
			tr, f := newFakeAPI(t, routes)

			err := tr.EnsureLabel(context.Background(), testRef, tc.label)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if diff := cmp.Diff(tc.wantCalls, f.calls()); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
			if tc.wantColor != "" {
				var got struct{ Name, Color string }
				if err := json.Unmarshal([]byte(f.body(1)), &got); err != nil {
					t.Fatalf("decode create body: %v", err)
				}
				if got.Name != tc.label || got.Color != tc.wantColor {
					t.Errorf("created %+v, want name %q color %q", got, tc.label, tc.wantColor)
				}
			}
		})
	}
}

func TestTracker_AddLabels(t *testing.T) {
	t.Parallel()

	tr, f := newFakeAPI(t, map[string]http.HandlerFunc{
		"POST /repos/acme/widgets/issues/42/labels": status(200, `[{"name":"bug"},{"name":"needs-info"}]`),
	})
	if err := tr.AddLabels(context.Background(), testRef, []string{"bug", "needs-info"}); err != nil {
		t.Fatalf("AddLabels: %v", err)
	}
	var got []string
	if err := json.Unmarshal([]byte(f.body(0)), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if diff := cmp.Diff([]string{"bug", "needs-info"}, got); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestTracker_RemoveLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"removed", 200, false},
		{"already absent", 404, false},
		{"rejected", 403, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tr, _ := newFakeAPI(t, map[string]http.HandlerFunc{
				"DELETE /repos/acme/widgets/issues/42/labels/needs-triage": status(tc.status, `[]`),
			})
			err := tr.RemoveLabel(context.Background(), testRef, triage.LabelNeedsTriage)
			if (err != nil) != tc.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestTracker_Comments(t *testing.T) {
	t.Parallel()

	tr, f := newFakeAPI(t, map[string]http.HandlerFunc{
		"POST /repos/acme/widgets/issues/42/comments":    status(201, `{"id": 99, "body": "x"}`),
		"PATCH /repos/acme/widgets/issues/comments/99":   status(200, `{"id": 99, "body": "y"}`),
		"DELETE /repos/acme/widgets/issues/comments/99":  status(204, ``),
		"DELETE /repos/acme/widgets/issues/comments/100": status(404, `{"message":"Not Found"}`),
	})
	ctx := context.Background()

	id, err := tr.CreateComment(ctx, testRef, "x")
	if err != nil {
		t.Fatalf("CreateComment: %v", err)
	}
	if id != 99 {
		t.Errorf("id = %d, want 99", id)
	}
	if err := tr.EditComment(ctx, testRef, 99, "y"); err != nil {
		t.Fatalf("EditComment: %v", err)
	}
	if !strings.Contains(f.body(1), `"body":"y"`) {
		t.Errorf("edit body = %s", f.body(1))
	}
	if err := tr.DeleteComment(ctx, testRef, 99); err != nil {
		t.Fatalf("DeleteComment: %v", err)
	}
	if err := tr.DeleteComment(ctx, testRef, 100); err != nil {
		t.Errorf("DeleteComment of missing comment: %v", err)
	}
}

func TestTracker_ReadFile(t *testing.T) {
	t.Parallel()

	content := base64.StdEncoding.EncodeToString([]byte("categories: [bug]\n"))
	tr, _ := newFakeAPI(t, map[string]http.HandlerFunc{
		"GET /repos/acme/widgets/contents/.github/triagebot.yml": status(200, `{
			"type": "file",
			"encoding": "base64",
			"path": ".github/triagebot.yml",
			"content": "`+content+`"
		}`),
		"GET /repos/acme/widgets/contents/.github/broken.yml": status(500, `{"message":"boom"}`),
	})
	ctx := context.Background()

	data, found, err := tr.ReadFile(ctx, "acme", "widgets", ".github/triagebot.yml")
	if err != nil || !found {
		t.Fatalf("ReadFile = found %v, err %v", found, err)
	}
	if string(data) != "categories: [bug]\n" {
		t.Errorf("data = %q", data)
	}

	_, found, err = tr.ReadFile(ctx, "acme", "widgets", ".github/missing.yml")
	if err != nil || found {
		t.Errorf("missing file: found %v, err %v", found, err)
	}

	if _, _, err := tr.ReadFile(ctx, "acme", "widgets", ".github/broken.yml"); err == nil {
		t.Error("expected error for server failure")
	}
}

func TestLabelColor(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"bug":             "d73a4a",
		"feature-request": "a2eeef",
		"question":        "d876e3",
		"documentation":   "0075ca",
		"needs-triage":    "e4e669",
		"needs-info":      "f9d0c4",
		"other":           "ededed",
	}
	for name, want := range tests {
		if got := LabelColor(name); got != want {
			t.Errorf("LabelColor(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Auth{}, ""); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(Auth{AppID: 1}, ""); err == nil {
		t.Error("expected error for incomplete app auth")
	}

	c, err := NewClient(Auth{Token: "tok"}, "https://ghe.example.com/api/v3/")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if got := c.BaseURL.String(); got != "https://ghe.example.com/api/v3/" {
		t.Errorf("BaseURL = %q", got)
	}
}
