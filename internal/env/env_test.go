package env

import "testing"

func TestPluginTransport(t *testing.T) {
	e := New(Map{PluginURL: "http://localhost/", PluginToken: "tok"})
	tr, ok := e.PluginTransport()
	if !ok {
		t.Fatal("expected plugin transport")
	}
	if tr.URL != "http://localhost/" || tr.Token != "tok" {
		t.Errorf("transport = %+v", tr)
	}

	if _, ok := New(Map{PluginURL: "http://localhost/"}).PluginTransport(); ok {
		t.Error("transport without token should be unavailable")
	}
}

func TestPipeTransport_RequiresVersion(t *testing.T) {
	pipes := Map{RequestPipe: "/tmp/req", ResponsePipe: "/tmp/resp"}
	if _, ok := New(pipes).PipeTransport(); ok {
		t.Error("pipe transport offered to version 0")
	}

	pipes[OSVersion] = "8.0.0"
	tr, ok := New(pipes).PipeTransport()
	if !ok {
		t.Fatal("expected pipe transport on 8.0.0")
	}
	if tr.Request != "/tmp/req" || tr.Response != "/tmp/resp" {
		t.Errorf("pipes = %+v", tr)
	}
	if !New(pipes).PluginAPIAvailable() {
		t.Error("PluginAPIAvailable = false with pipes configured")
	}
}

func TestAPIToken_Fallback(t *testing.T) {
	tests := []struct {
		name string
		src  Map
		want string
		ok   bool
	}{
		{"current", Map{APIToken: "new", LegacyAPIToken: "old"}, "new", true},
		{"legacy", Map{LegacyAPIToken: "old"}, "old", true},
		{"empty current", Map{APIToken: "", LegacyAPIToken: "old"}, "old", true},
		{"none", Map{}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := New(tt.src).APIToken()
			if got != tt.want || ok != tt.ok {
				t.Errorf("APIToken() = %q, %v, want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestLSOSVersion(t *testing.T) {
	if got := New(Map{}).LSOSVersionString(); got != "0" {
		t.Errorf("default version = %q, want 0", got)
	}
	e := New(Map{OSVersion: "v7.0.1-rc2"})
	if !e.LSOSAtLeast(7, 0, 1) {
		t.Error("7.0.1-rc2 should satisfy 7.0.1")
	}
	if e.LSOSAtLeast(8) {
		t.Error("7.0.1 should not satisfy 8")
	}
}

func TestLayered(t *testing.T) {
	src := Layered(Map{PluginURL: "http://first/"}, Map{PluginURL: "http://second/", PluginToken: "tok"})
	if got, _ := src.Lookup(PluginURL); got != "http://first/" {
		t.Errorf("PLUGIN_URL = %q, want first layer", got)
	}
	if got, _ := src.Lookup(PluginToken); got != "tok" {
		t.Errorf("PLUGIN_TOKEN = %q, want second layer", got)
	}
	if _, ok := src.Lookup(ImagesDir); ok {
		t.Error("unset key reported as set")
	}
}

func TestEnv_ReadsEachCall(t *testing.T) {
	m := Map{}
	e := New(m)
	if e.PluginAPIAvailable() {
		t.Fatal("unexpected transport")
	}
	m[PluginURL] = "http://device/"
	m[PluginToken] = "t"
	if !e.PluginAPIAvailable() {
		t.Error("transport added after construction was not seen")
	}
}
