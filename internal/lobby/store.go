// internal/lobby/store.go
package lobby

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/blanks/internal/deck"
	"github.com/jason-s-yu/blanks/internal/journal"
)

// ErrLobbyNotFound is returned for unknown lobby codes.
var ErrLobbyNotFound = errors.New("lobby not found")

const codeLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Store manages ephemeral lobbies in memory only; nothing survives a restart.
type Store struct {
	mu      sync.Mutex
	lobbies map[string]*Lobby

	catalog deck.Catalog
	journal *journal.Journal
	opts    Options
	logger  *logrus.Logger
	rng     *rand.Rand
}

// NewStore returns an in-memory lobby store. New lobbies inherit the given
// catalog, journal and options.
func NewStore(catalog deck.Catalog, j *journal.Journal, opts Options, logger *logrus.Logger) *Store {
	return &Store{
		lobbies: make(map[string]*Lobby),
		catalog: catalog,
		journal: j,
		opts:    opts,
		logger:  logger,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Create builds a lobby under a fresh join code and wires its OnEmpty
// callback to remove it from the store.
func (s *Store) Create() *Lobby {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := s.randomCode(4)
	for s.lobbies[code] != nil {
		code = s.randomCode(4)
	}
	l := New(code, s.catalog, s.journal, s.opts, s.logger)
	l.OnEmpty = s.Delete
	s.lobbies[code] = l
	return l
}

// Get retrieves a lobby by code.
func (s *Store) Get(code string) (*Lobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies[code]
	if !ok {
		return nil, ErrLobbyNotFound
	}
	return l, nil
}

// Delete removes a lobby from the store.
func (s *Store) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lobbies, code)
}

// Codes lists the live lobby codes, primarily for debugging.
func (s *Store) Codes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.lobbies))
	for code := range s.lobbies {
		out = append(out, code)
	}
	return out
}

func (s *Store) randomCode(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = codeLetters[s.rng.Intn(len(codeLetters))]
	}
	return string(b)
}
