package domain

import (
	"net/http"
	"reflect"
	"strings"
	"testing"
)

func TestFirstSubdomain(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"potatoname.example.com", "potatoname"},
		{"potatoname.example.com:8080", "potatoname"},
		{"example.com", ""},
		{"localhost", ""},
		{"Tiny-Cat.api.example.com", "tiny-cat"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			if got := FirstSubdomain(tt.host); got != tt.want {
				t.Errorf("FirstSubdomain(%q) = %q, want %q", tt.host, got, tt.want)
			}
		})
	}
}

func TestSessionCandidatesOrder(t *testing.T) {
	h := http.Header{}
	h.Set("X-Forwarded-Host", "fwd.example.com")
	h.Set("Referer", "https://ref.example.com/some/page")
	h.Set("Origin", "https://orig.example.com")
	h.Set("Tracestate", "vendor=abc, linkup-session=trace")
	h.Set("Baggage", "linkup-session=bag;prop=1")

	got := SessionCandidates("host.example.com", h)
	want := []string{"host", "fwd", "ref", "orig", "trace", "bag"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SessionCandidates() = %v, want %v", got, want)
	}
}

func TestSessionCandidatesSkipsEmptyAndDuplicates(t *testing.T) {
	h := http.Header{}
	h.Set("Referer", "https://potatoname.example.com/")
	h.Set("Tracestate", "linkup-session=potatoname")

	got := SessionCandidates("example.com", h)
	if !reflect.DeepEqual(got, []string{"potatoname"}) {
		t.Errorf("SessionCandidates() = %v", got)
	}
}

func TestStripSession(t *testing.T) {
	tests := []struct {
		host, session, want string
	}{
		{"potatoname.example.com", "potatoname", "example.com"},
		{"other.example.com", "potatoname", "other.example.com"},
		{"example.com", "example", "example.com"},
		{"potatoname.api.example.com:443", "potatoname", "api.example.com:443"},
	}
	for _, tt := range tests {
		if got := StripSession(tt.host, tt.session); got != tt.want {
			t.Errorf("StripSession(%q, %q) = %q, want %q", tt.host, tt.session, got, tt.want)
		}
	}
}

func TestNormalizeSessionName(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"potatoname", "potatoname", true},
		{" PotatoName ", "potatoname", true},
		{"calm-fox-3", "calm-fox-3", true},
		{"a.b", "a.b", false},
		{"-potato", "-potato", false},
		{"potato-", "potato-", false},
		{"potato_name", "potato_name", false},
		{"", "", false},
		{strings.Repeat("a", 64), strings.Repeat("a", 64), false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeSessionName(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("NormalizeSessionName(%q) = %q, %v, want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestHostOf(t *testing.T) {
	tests := map[string]string{
		"https://a.example.com/path?q=1": "a.example.com",
		"http://a.example.com:8080":      "a.example.com:8080",
		"a.example.com/path":             "a.example.com",
		"":                               "",
	}
	for in, want := range tests {
		if got := HostOf(in); got != want {
			t.Errorf("HostOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUpstreamHeaders(t *testing.T) {
	dest := Destination{Service: "frontend"}

	t.Run("fills missing headers", func(t *testing.T) {
		out := UpstreamHeaders(http.Header{}, "potatoname", "potatoname.example.com", dest)
		if tp := out.Get("traceparent"); len(tp) != 55 || !strings.HasPrefix(tp, "00-") {
			t.Errorf("traceparent = %q", tp)
		}
		if got := out.Get("tracestate"); got != "linkup-session=potatoname" {
			t.Errorf("tracestate = %q", got)
		}
		if got := out.Get("linkup-destination"); got != "frontend" {
			t.Errorf("linkup-destination = %q", got)
		}
		if got := out.Get("x-forwarded-host"); got != "example.com" {
			t.Errorf("x-forwarded-host = %q", got)
		}
	})

	t.Run("keeps existing headers", func(t *testing.T) {
		in := http.Header{}
		in.Set("traceparent", "00-aaaa-bbbb-00")
		in.Set("tracestate", "vendor=1")
		in.Set("linkup-destination", "backend")
		in.Set("x-forwarded-host", "orig.example.com")

		out := UpstreamHeaders(in, "potatoname", "example.com", dest)
		if out.Get("traceparent") != "" || out.Get("linkup-destination") != "" || out.Get("x-forwarded-host") != "" {
			t.Errorf("existing headers should not be overridden: %v", out)
		}
		if got := out.Get("tracestate"); got != "vendor=1,linkup-session=potatoname" {
			t.Errorf("tracestate = %q", got)
		}
	})

	t.Run("does not repeat session in tracestate", func(t *testing.T) {
		in := http.Header{}
		in.Set("tracestate", "linkup-session=potatoname")
		out := UpstreamHeaders(in, "potatoname", "example.com", dest)
		if _, ok := out["Tracestate"]; ok {
			t.Errorf("tracestate should be left alone, got %q", out.Get("tracestate"))
		}
	})
}
