package webapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v4"

	"github.com/larsen-farm/plugintools/internal/console"
	"github.com/larsen-farm/plugintools/internal/env"
)

func tokenFor(t *testing.T, iss string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"iss": iss, "sub": "farmer"}).
		SignedString([]byte("server-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

type seen struct {
	method string
	path   string
	auth   string
	ctype  string
	body   string
}

// startAPI serves handler and returns a client pointed at it through the
// token's issuer claim.
func startAPI(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *bytes.Buffer, *[]seen) {
	t.Helper()
	var requests []seen
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, seen{r.Method, r.URL.Path, r.Header.Get("Authorization"), r.Header.Get("Content-Type"), string(body)})
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	token := tokenFor(t, strings.TrimPrefix(srv.URL, "http:"))
	var out bytes.Buffer
	c := NewClient(WithEnv(env.Map{env.APIToken: token}), WithPrinter(console.New(&out, false)))
	return c, &out, &requests
}

func TestResolveInfo(t *testing.T) {
	tests := []struct {
		iss  string
		want string
	}{
		{"//my.farm.example:443", "https://my.farm.example:443/api/"},
		{"//localhost:3000", "http://localhost:3000/api/"},
	}
	for _, tt := range tests {
		info, err := ResolveInfo(env.New(env.Map{env.LegacyAPIToken: tokenFor(t, tt.iss)}))
		if err != nil {
			t.Fatalf("ResolveInfo(%s): %v", tt.iss, err)
		}
		if info.URL != tt.want {
			t.Errorf("URL = %q, want %q", info.URL, tt.want)
		}
	}
}

func TestResolveInfo_Errors(t *testing.T) {
	if _, err := ResolveInfo(env.New(env.Map{})); !errors.Is(err, ErrNoToken) {
		t.Errorf("no token: %v, want ErrNoToken", err)
	}
	if _, err := ResolveInfo(env.New(env.Map{env.APIToken: "not.a.jwt"})); err == nil {
		t.Error("garbage token accepted")
	}
	noIss, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("k"))
	if _, err := ResolveInfo(env.New(env.Map{env.APIToken: noIss})); err == nil {
		t.Error("token without iss accepted")
	}
}

func TestRequest_JSON(t *testing.T) {
	c, out, requests := startAPI(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":7,"name":"new tool"}`)
	})

	resp, err := c.Request(context.Background(), "post", "tools", "", map[string]any{"name": "new tool"})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !resp.OK() {
		t.Errorf("response not OK: %+v", resp)
	}
	if rec, _ := resp.JSON.(map[string]any); rec["id"] != 7.0 {
		t.Errorf("JSON = %v", resp.JSON)
	}

	got := (*requests)[0]
	if got.method != http.MethodPost || got.path != "/api/tools" {
		t.Errorf("request = %s %s", got.method, got.path)
	}
	if !strings.HasPrefix(got.auth, "Bearer ") || got.ctype != "application/json" {
		t.Errorf("headers auth=%q content-type=%q", got.auth, got.ctype)
	}
	if got.body != `{"name":"new tool"}` {
		t.Errorf("body = %q", got.body)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestRequest_GetNeverSendsPayload(t *testing.T) {
	c, _, requests := startAPI(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[]`)
	})

	if _, err := c.Request(context.Background(), "GET", "tools", "3", map[string]any{"ignored": true}); err != nil {
		t.Fatal(err)
	}
	got := (*requests)[0]
	if got.path != "/api/tools/3" || got.body != "" {
		t.Errorf("request = %s body %q", got.path, got.body)
	}
}

func TestRequest_ErrorStatusPrintsSummary(t *testing.T) {
	c, out, _ := startAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, `{"name":"is required"}`)
	})

	resp, err := c.Post(context.Background(), "tools", map[string]any{})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if resp.StatusCode != http.StatusUnprocessableEntity || resp.OK() {
		t.Errorf("resp = %+v", resp)
	}
	want := "422: POST /api/tools {}\n{\"name\":\"is required\"}\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestRequest_Verbose(t *testing.T) {
	c, out, _ := startAPI(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	})
	c.verbose = true

	if _, err := c.Get(context.Background(), "device", ""); err != nil {
		t.Fatal(err)
	}
	if out.String() != "\n200: GET /api/device \n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestRequest_HTMLBody(t *testing.T) {
	page := "<html><head><title>x</title></head><body><h1>Service Unavailable</h1><h2>Back soon</h2>" +
		strings.Repeat("<p>filler</p>", 1000) + "</body></html>"
	c, _, _ := startAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, page)
	})

	resp, err := c.Get(context.Background(), "sequences", "")
	if err != nil {
		t.Fatal(err)
	}
	if resp.JSON != "Service Unavailable: Back soon" {
		t.Errorf("JSON = %q", resp.JSON)
	}
}

func TestRequest_ShortTextBody(t *testing.T) {
	c, _, _ := startAPI(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "plain ok")
	})
	resp, _ := c.Get(context.Background(), "ping", "")
	if resp.JSON != "plain ok" {
		t.Errorf("JSON = %v, want raw text", resp.JSON)
	}
}

func TestRequest_NoToken(t *testing.T) {
	var out bytes.Buffer
	c := NewClient(WithEnv(env.Map{}), WithPrinter(console.New(&out, false)))

	resp, err := c.Request(context.Background(), "PUT", "tools", "1", map[string]any{"name": "x"})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	want := `PUT /api/tools/1 {"name":"x"}`
	if resp.Sent || resp.JSON != want {
		t.Errorf("resp = %+v, want unsent %q", resp, want)
	}
	if out.String() != want+"\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestSearchHelpers(t *testing.T) {
	c, _, requests := startAPI(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[]`)
	})
	ctx := context.Background()

	c.GetPlants(ctx)
	c.GetPoints(ctx)
	c.GetToolslots(ctx)

	wantTypes := []string{"Plant", "GenericPointer", "ToolSlot"}
	for i, want := range wantTypes {
		got := (*requests)[i]
		var body map[string]any
		json.Unmarshal([]byte(got.body), &body)
		if got.path != "/api/points/search" || body["pointer_type"] != want {
			t.Errorf("request %d = %s %v, want pointer_type %s", i, got.path, body, want)
		}
	}
}

func TestAddPlant(t *testing.T) {
	c, _, requests := startAPI(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":1}`)
	})
	radius := 10.0

	if _, err := c.AddPlant(context.Background(), 10, 20, PlantOptions{Name: "mint", PlantingSlug: "mint", Radius: &radius}); err != nil {
		t.Fatal(err)
	}
	var body map[string]any
	json.Unmarshal([]byte((*requests)[0].body), &body)
	want := map[string]any{"pointer_type": "Plant", "x": 10.0, "y": 20.0, "name": "mint", "planting_slug": "mint", "radius": 10.0}
	if len(body) != len(want) {
		t.Fatalf("body = %v, want %v", body, want)
	}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("body[%s] = %v, want %v", k, body[k], v)
		}
	}
}

func TestGetProperty(t *testing.T) {
	c, _, _ := startAPI(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"name":"Larsen 1","id":2}`)
	})
	ctx := context.Background()

	name, err := c.GetProperty(ctx, "device", "name", "")
	if err != nil || name != "Larsen 1" {
		t.Errorf("name = %v, %v", name, err)
	}
	if _, err := c.GetProperty(ctx, "device", "serial", ""); !errors.Is(err, ErrPropertyNotFound) {
		t.Errorf("missing field error = %v", err)
	}
}

func TestFindSequenceByName(t *testing.T) {
	c, _, requests := startAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/sequences" {
			io.WriteString(w, `[{"id":1,"name":"water"},{"id":5,"name":"weed"}]`)
			return
		}
		io.WriteString(w, `{}`)
	})
	ctx := context.Background()

	id, err := c.FindSequenceByName(ctx, "weed")
	if err != nil || id != 5 {
		t.Errorf("weed = %d, %v, want 5", id, err)
	}

	if _, err := c.FindSequenceByName(ctx, "harvest"); !errors.Is(err, ErrSequenceNotFound) {
		t.Fatalf("harvest error = %v, want ErrSequenceNotFound", err)
	}
	last := (*requests)[len(*requests)-1]
	if last.path != "/api/logs" || !strings.Contains(last.body, "Sequence `harvest` not found.") {
		t.Errorf("last request = %s %s, want error log", last.path, last.body)
	}
}
