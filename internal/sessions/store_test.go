package sessions

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"sync"
	"testing"

	"github.com/MrSnakeDoc/linkup/internal/domain"
	"github.com/MrSnakeDoc/linkup/internal/logger"
	"github.com/MrSnakeDoc/linkup/internal/store/memory"
)

func newTestStore(t *testing.T) (*Store, *memory.Store) {
	t.Helper()
	backend := memory.NewStore()
	return NewStore(backend, logger.Nop()), backend
}

func potatoDocument(token string) domain.Document {
	return domain.Document{
		DesiredName:  "potatoname",
		SessionToken: token,
		Services:     []domain.ServiceSpec{{Name: "frontend", Location: "http://example.com"}},
		Domains:      []domain.DomainSpec{{Domain: "example.com", DefaultService: "frontend"}},
	}
}

func TestCreateOrUpdateReusesFreeDesiredName(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	name, err := s.CreateOrUpdate(ctx, potatoDocument("tok"))
	if err != nil {
		t.Fatalf("CreateOrUpdate() error: %v", err)
	}
	if name != "potatoname" {
		t.Fatalf("CreateOrUpdate() = %q, want potatoname", name)
	}

	sess, err := s.Get(ctx, name)
	if err != nil || sess == nil {
		t.Fatalf("Get() = %v, %v", sess, err)
	}
	if sess.Token != "tok" || sess.Services["frontend"].Location.String() != "http://example.com" {
		t.Errorf("stored session differs from input: %+v", sess)
	}
}

func TestCreateOrUpdateSameTokenUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t)

	if _, err := s.CreateOrUpdate(ctx, potatoDocument("tok")); err != nil {
		t.Fatal(err)
	}
	first, _ := backend.Get(ctx, "potatoname")

	doc := potatoDocument("tok")
	doc.Services[0].Location = "http://localhost:3000"
	name, err := s.CreateOrUpdate(ctx, doc)
	if err != nil {
		t.Fatal(err)
	}
	if name != "potatoname" {
		t.Fatalf("update should keep the name, got %q", name)
	}

	sess, _ := s.Get(ctx, "potatoname")
	if got := sess.Services["frontend"].Location.String(); got != "http://localhost:3000" {
		t.Errorf("session not replaced, location = %q", got)
	}
	second, _ := backend.Get(ctx, "potatoname")
	if second.Revision == first.Revision {
		t.Error("revision should change on update")
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Error("CreatedAt should survive an update")
	}
	if backend.Count() != 1 {
		t.Errorf("update created extra records: %d", backend.Count())
	}
}

func TestCreateOrUpdateOtherTokenGetsGeneratedName(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if _, err := s.CreateOrUpdate(ctx, potatoDocument("owner")); err != nil {
		t.Fatal(err)
	}
	name, err := s.CreateOrUpdate(ctx, potatoDocument("intruder"))
	if err != nil {
		t.Fatal(err)
	}
	if name == "potatoname" {
		t.Fatal("a different token must not take over the session")
	}

	sess, _ := s.Get(ctx, "potatoname")
	if sess.Token != "owner" {
		t.Errorf("original session was overwritten")
	}
}

func TestCreateOrUpdateNormalizesDesiredName(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t)

	doc := potatoDocument("tok")
	doc.DesiredName = "PotatoName"
	name, err := s.CreateOrUpdate(ctx, doc)
	if err != nil {
		t.Fatal(err)
	}
	if name != "potatoname" {
		t.Fatalf("CreateOrUpdate() = %q, want potatoname", name)
	}
	sess, err := s.RequestSession(ctx, "potatoname.example.com", http.Header{})
	if err != nil || sess.Name != "potatoname" {
		t.Fatalf("RequestSession() = %v, %v", sess, err)
	}

	doc.DesiredName = "potato.name"
	if _, err := s.CreateOrUpdate(ctx, doc); !domain.IsValidation(err) {
		t.Fatalf("dotted desired name: expected validation error, got %v", err)
	}
	if backend.Count() != 1 {
		t.Errorf("stored %d sessions, want 1", backend.Count())
	}
}

func TestGetDropsCacheOnMiss(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t)

	if _, err := s.CreateOrUpdate(ctx, potatoDocument("tok")); err != nil {
		t.Fatal(err)
	}
	if sess, _ := s.Get(ctx, "potatoname"); sess == nil {
		t.Fatal("Get() should find the session")
	}
	cached := func() bool {
		s.cacheMu.RLock()
		defer s.cacheMu.RUnlock()
		_, ok := s.cache["potatoname"]
		return ok
	}
	if !cached() {
		t.Fatal("compiled session should be cached after Get")
	}

	// expired or removed by another server
	if err := backend.Delete(ctx, "potatoname"); err != nil {
		t.Fatal(err)
	}
	sess, err := s.Get(ctx, "potatoname")
	if err != nil || sess != nil {
		t.Fatalf("Get() after backend delete = %v, %v", sess, err)
	}
	if cached() {
		t.Error("cache entry kept after a backend miss")
	}
}

func TestCreateOrUpdateRejectsInvalidDocument(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t)

	doc := potatoDocument("tok")
	doc.Domains[0].DefaultService = "ghost"
	_, err := s.CreateOrUpdate(ctx, doc)
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if backend.Count() != 0 {
		t.Error("invalid document must not be stored")
	}
}

func TestConcurrentCreateOrUpdateUniqueness(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t)

	const writers = 40
	names := make([]string, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// every writer has its own token so nobody may update another's session
			name, err := s.CreateOrUpdate(ctx, potatoDocument(string(rune('a'+i%26))+string(rune('A'+i/26))))
			if err != nil {
				t.Errorf("CreateOrUpdate() error: %v", err)
				return
			}
			names[i] = name
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, writers)
	winners := 0
	for _, n := range names {
		if seen[n] {
			t.Fatalf("name %q handed out twice", n)
		}
		seen[n] = true
		if n == "potatoname" {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("desired name given to %d writers, want exactly 1", winners)
	}
	if backend.Count() != writers {
		t.Errorf("stored %d sessions, want %d", backend.Count(), writers)
	}
}

// racingBackend pretends another server claims every name first.
type racingBackend struct {
	*memory.Store
}

func (racingBackend) PutIfAbsent(context.Context, *domain.Record) (bool, error) {
	return false, nil
}

func TestCreateOrUpdateBoundedWhenClaimsKeepFailing(t *testing.T) {
	s := NewStore(racingBackend{memory.NewStore()}, logger.Nop(),
		WithNameGenerator(domain.NameGenerator{Rand: rand.New(rand.NewPCG(3, 4))}))

	_, err := s.CreateOrUpdate(context.Background(), potatoDocument("tok"))
	if !errors.Is(err, domain.ErrNameExhausted) {
		t.Fatalf("expected ErrNameExhausted, got %v", err)
	}
}

// failingBackend fails every read.
type failingBackend struct{ *memory.Store }

var errDown = errors.New("backend down")

func (failingBackend) Get(context.Context, string) (*domain.Record, error) { return nil, errDown }

func TestBackendFaultsAreDistinct(t *testing.T) {
	s := NewStore(failingBackend{memory.NewStore()}, logger.Nop())

	_, err := s.Get(context.Background(), "x")
	if !errors.Is(err, domain.ErrBackend) || !errors.Is(err, errDown) {
		t.Errorf("Get() error = %v, want backend fault", err)
	}

	_, err = s.CreateOrUpdate(context.Background(), potatoDocument("tok"))
	if !errors.Is(err, domain.ErrBackend) {
		t.Errorf("CreateOrUpdate() error = %v, want backend fault", err)
	}
}

func TestCreatePreviewIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t)

	doc := potatoDocument("")
	a, err := s.CreatePreview(ctx, doc)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.CreatePreview(ctx, doc)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("preview names differ: %q vs %q", a, b)
	}
	if backend.Count() != 1 {
		t.Errorf("preview stored %d times", backend.Count())
	}
	rec, _ := backend.Get(ctx, a)
	if !rec.Preview {
		t.Error("preview flag not set")
	}
}

func TestRequestSession(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	if _, err := s.CreateOrUpdate(ctx, potatoDocument("tok")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		host    string
		header  http.Header
		wantErr error
	}{
		{name: "subdomain", host: "potatoname.example.com", header: http.Header{}},
		{name: "tracestate", host: "example.com", header: http.Header{"Tracestate": {"linkup-session=potatoname"}}},
		{name: "baggage", host: "example.com", header: http.Header{"Baggage": {"linkup-session=potatoname"}}},
		{name: "referer", host: "localhost:9066", header: http.Header{"Referer": {"http://potatoname.example.com/x"}}},
		{name: "unknown", host: "other.example.com", header: http.Header{}, wantErr: domain.ErrUnknownSession},
		{name: "no hints", host: "example.com", header: http.Header{}, wantErr: domain.ErrUnknownSession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := s.RequestSession(ctx, tt.host, tt.header)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if sess.Name != "potatoname" {
				t.Errorf("session = %q", sess.Name)
			}
		})
	}
}

func TestCompiledSessionCachedPerRevision(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	if _, err := s.CreateOrUpdate(ctx, potatoDocument("tok")); err != nil {
		t.Fatal(err)
	}

	a, _ := s.Get(ctx, "potatoname")
	b, _ := s.Get(ctx, "potatoname")
	if a != b {
		t.Error("unchanged session should come from the cache")
	}

	if _, err := s.CreateOrUpdate(ctx, potatoDocument("tok")); err != nil {
		t.Fatal(err)
	}
	c, _ := s.Get(ctx, "potatoname")
	if c == a {
		t.Error("updated session should be recompiled")
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	if _, err := s.CreateOrUpdate(ctx, potatoDocument("tok")); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "potatoname"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists(ctx, "potatoname"); ok {
		t.Error("session still exists after Delete()")
	}
}
