package sessions

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/linkup/internal/domain"
	"github.com/MrSnakeDoc/linkup/internal/logger"
)

// claimAttempts bounds how often a generated name may lose a PutIfAbsent race
// against another writer before CreateOrUpdate gives up.
const claimAttempts = 5

// Backend is the storage behind a Store. A miss is (nil, nil), never an error.
type Backend interface {
	Get(ctx context.Context, name string) (*domain.Record, error)
	Put(ctx context.Context, rec *domain.Record) error
	// PutIfAbsent stores rec only when no record exists under rec.Name.
	PutIfAbsent(ctx context.Context, rec *domain.Record) (bool, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]*domain.Record, error)
	Ping(ctx context.Context) error
}

// Store is the session registry. It validates documents, allocates names and
// caches compiled sessions.
type Store struct {
	backend Backend
	names   domain.NameGenerator
	logger  logger.Logger
	now     func() time.Time

	// mu linearizes the name decision and the insert of CreateOrUpdate.
	mu sync.RWMutex

	cacheMu sync.RWMutex
	cache   map[string]*domain.Session // keyed by name, checked against revision
	revs    map[string]string
}

// Option tweaks a Store.
type Option func(*Store)

// WithNameGenerator replaces the default random name generator.
func WithNameGenerator(g domain.NameGenerator) Option {
	return func(s *Store) { s.names = g }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store over backend.
func NewStore(backend Backend, log logger.Logger, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  log,
		now:     time.Now,
		cache:   make(map[string]*domain.Session),
		revs:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the compiled session stored under name, or nil when absent.
func (s *Store) Get(ctx context.Context, name string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.backend.Get(ctx, name)
	if err != nil {
		return nil, domain.BackendError("get session", err)
	}
	if rec == nil {
		s.forget(name)
		return nil, nil
	}
	return s.compiled(rec)
}

// Exists reports whether name is taken.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exists(ctx, name)
}

func (s *Store) exists(ctx context.Context, name string) (bool, error) {
	rec, err := s.backend.Get(ctx, name)
	if err != nil {
		return false, domain.BackendError("check session", err)
	}
	return rec != nil, nil
}

// Put stores doc under name, replacing whatever was there.
func (s *Store) Put(ctx context.Context, name string, doc domain.Document) error {
	if _, err := domain.Compile(name, doc); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.backend.Get(ctx, name)
	if err != nil {
		return domain.BackendError("get session", err)
	}
	return s.write(ctx, s.record(name, doc, prev, false))
}

// CreateOrUpdate stores doc and returns the name it ended up under.
//
// A desired name already held with the same session token is updated in place.
// A free desired name is claimed. Anything else, including losing a claim
// race to a concurrent writer, yields a generated name.
func (s *Store) CreateOrUpdate(ctx context.Context, doc domain.Document) (string, error) {
	if _, err := domain.Compile("", doc); err != nil {
		return "", err
	}
	// Compile accepted it, so only the case can differ from a valid label.
	desired, _ := domain.NormalizeSessionName(doc.DesiredName)
	doc.DesiredName = ""

	s.mu.Lock()
	defer s.mu.Unlock()

	if desired != "" {
		prev, err := s.backend.Get(ctx, desired)
		if err != nil {
			return "", domain.BackendError("get session", err)
		}
		switch {
		case prev != nil && !prev.Preview && prev.Document.SessionToken == doc.SessionToken:
			if err := s.write(ctx, s.record(desired, doc, prev, false)); err != nil {
				return "", err
			}
			s.logger.Info("session updated", logger.String("session", desired))
			return desired, nil
		case prev == nil:
			ok, err := s.claim(ctx, s.record(desired, doc, nil, false))
			if err != nil {
				return "", err
			}
			if ok {
				s.logger.Info("session created", logger.String("session", desired))
				return desired, nil
			}
		}
	}

	for attempt := 0; attempt < claimAttempts; attempt++ {
		name, err := s.names.Generate("", func(n string) (bool, error) { return s.exists(ctx, n) })
		if err != nil {
			return "", err
		}
		ok, err := s.claim(ctx, s.record(name, doc, nil, false))
		if err != nil {
			return "", err
		}
		if ok {
			s.logger.Info("session created",
				logger.String("session", name),
				logger.String("desired", desired))
			return name, nil
		}
	}
	return "", domain.ErrNameExhausted
}

// CreatePreview stores doc under a name derived from its content. Posting the
// same preview twice gives the same name.
func (s *Store) CreatePreview(ctx context.Context, doc domain.Document) (string, error) {
	if _, err := domain.Compile("", doc); err != nil {
		return "", err
	}
	doc.DesiredName = ""
	name := domain.PreviewName(doc)

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.backend.Get(ctx, name)
	if err != nil {
		return "", domain.BackendError("get session", err)
	}
	if prev != nil && !prev.Preview {
		return "", fmt.Errorf("%w: %q", domain.ErrNameTaken, name)
	}
	if err := s.write(ctx, s.record(name, doc, prev, true)); err != nil {
		return "", err
	}
	s.logger.Info("preview stored", logger.String("session", name))
	return name, nil
}

// Delete removes a session. Removing a missing session is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Delete(ctx, name); err != nil {
		return domain.BackendError("delete session", err)
	}
	s.forget(name)
	return nil
}

// List returns every stored record.
func (s *Store) List(ctx context.Context) ([]*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs, err := s.backend.List(ctx)
	if err != nil {
		return nil, domain.BackendError("list sessions", err)
	}
	return recs, nil
}

// Ping checks that the backend answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.backend.Ping(ctx); err != nil {
		return domain.BackendError("ping", err)
	}
	return nil
}

// RequestSession finds the session a request belongs to by walking the
// candidates from domain.SessionCandidates.
func (s *Store) RequestSession(ctx context.Context, host string, h http.Header) (*domain.Session, error) {
	for _, name := range domain.SessionCandidates(host, h) {
		sess, err := s.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			return sess, nil
		}
	}
	return nil, domain.ErrUnknownSession
}

func (s *Store) record(name string, doc domain.Document, prev *domain.Record, preview bool) *domain.Record {
	now := s.now()
	rec := &domain.Record{
		Name:      name,
		Revision:  uuid.NewString(),
		Preview:   preview,
		Document:  doc.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if prev != nil {
		rec.CreatedAt = prev.CreatedAt
	}
	return rec
}

func (s *Store) write(ctx context.Context, rec *domain.Record) error {
	if err := s.backend.Put(ctx, rec); err != nil {
		return domain.BackendError("put session", err)
	}
	s.forget(rec.Name)
	return nil
}

func (s *Store) claim(ctx context.Context, rec *domain.Record) (bool, error) {
	ok, err := s.backend.PutIfAbsent(ctx, rec)
	if err != nil {
		return false, domain.BackendError("claim session", err)
	}
	if ok {
		s.forget(rec.Name)
	}
	return ok, nil
}

// compiled returns the cached compiled form of rec, compiling on a revision
// change.
func (s *Store) compiled(rec *domain.Record) (*domain.Session, error) {
	s.cacheMu.RLock()
	sess, ok := s.cache[rec.Name]
	rev := s.revs[rec.Name]
	s.cacheMu.RUnlock()
	if ok && rev == rec.Revision {
		return sess, nil
	}

	sess, err := domain.Compile(rec.Name, rec.Document)
	if err != nil {
		// Stored content was validated on the way in. Seeing this means the
		// backend was written by something else.
		return nil, domain.BackendError("compile stored session", err)
	}

	s.cacheMu.Lock()
	s.cache[rec.Name] = sess
	s.revs[rec.Name] = rec.Revision
	s.cacheMu.Unlock()
	return sess, nil
}

func (s *Store) forget(name string) {
	s.cacheMu.Lock()
	delete(s.cache, name)
	delete(s.revs, name)
	s.cacheMu.Unlock()
}
