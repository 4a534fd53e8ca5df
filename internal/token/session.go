package token

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// opState tracks the two-step sign/verify protocol. A session holds at
// most one operation at a time; any completed or failed operation
// returns it to opIdle.
type opState int

const (
	opIdle opState = iota
	opSignReady
	opVerifyReady
)

// Session is an authenticated unit of work against one token. All
// methods are safe for concurrent use; multi-call protocols are
// serialized by the session mutex.
type Session struct {
	mu      sync.Mutex
	mod     Module
	handle  SessionHandle
	slot    uint
	dialect Dialect

	authed bool
	closed bool
	state  opState
}

// Open opens a read-write session on the slot the config names. The
// session is not yet authenticated; call Login before key operations.
func Open(mod Module, cfg Config) (*Session, error) {
	dialect, err := ParseDialect(cfg.Dialect)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}

	slot, err := resolveSlot(mod, cfg)
	if err != nil {
		return nil, err
	}

	h, err := mod.OpenSession(slot)
	if err != nil {
		return nil, wrap("open session", err)
	}

	return &Session{mod: mod, handle: h, slot: slot, dialect: dialect}, nil
}

// resolveSlot picks the slot from the config: an explicit slot ID wins,
// otherwise the first slot whose token label matches.
func resolveSlot(mod Module, cfg Config) (uint, error) {
	slots, err := mod.Slots()
	if err != nil {
		return 0, wrap("list slots", err)
	}

	if cfg.Slot != nil {
		for _, s := range slots {
			if s.ID == *cfg.Slot {
				if !s.HasToken {
					return 0, &Error{Op: "resolve slot", RV: CKR_TOKEN_NOT_PRESENT, Err: ErrTokenUnavailable}
				}
				return s.ID, nil
			}
		}
		return 0, &Error{Op: "resolve slot", RV: CKR_SLOT_ID_INVALID, Err: ErrTokenUnavailable}
	}

	for _, s := range slots {
		if s.HasToken && strings.TrimSpace(s.TokenLabel) == cfg.Token {
			return s.ID, nil
		}
	}
	return 0, &Error{Op: "resolve slot", RV: CKR_TOKEN_NOT_PRESENT,
		Err: fmt.Errorf("%w: no token labeled %q", ErrTokenUnavailable, cfg.Token)}
}

// Slot returns the slot the session was opened on.
func (s *Session) Slot() uint { return s.slot }

// Dialect returns the vendor dialect the session was opened with.
func (s *Session) Dialect() Dialect { return s.dialect }

// Authenticated reports whether Login has succeeded on this session.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authed
}

// Login authenticates the session as the normal user. Logging in twice
// is an error; the session remains authenticated and usable.
func (s *Session) Login(pin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &Error{Op: "login", Err: ErrSessionClosed}
	}
	if s.authed {
		return &Error{Op: "login", RV: CKR_USER_ALREADY_LOGGED_IN, Err: ErrAlreadyAuthenticated}
	}
	if err := s.mod.Login(s.handle, pin); err != nil {
		return wrap("login", err)
	}
	s.authed = true
	return nil
}

// Close logs out and closes the session. It is idempotent; a second
// call returns nil. Key handles obtained through the session are
// invalid afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.state = opIdle

	var firstErr error
	if s.authed {
		s.authed = false
		if err := s.mod.Logout(s.handle); err != nil {
			// A token that already dropped the login is fine.
			if rv, ok := asRV(err); !ok || rv != CKR_USER_NOT_LOGGED_IN {
				firstErr = wrap("logout", err)
			}
		}
	}
	if err := s.mod.CloseSession(s.handle); err != nil && firstErr == nil {
		firstErr = wrap("close session", err)
	}
	return firstErr
}

// requireAuthLocked enforces the login-before-crypto rule.
func (s *Session) requireAuthLocked(op string) error {
	if s.closed {
		return &Error{Op: op, Err: ErrSessionClosed}
	}
	if !s.authed {
		return &Error{Op: op, RV: CKR_USER_NOT_LOGGED_IN, Err: ErrNotAuthenticated}
	}
	return nil
}

func asRV(err error) (RV, bool) {
	var e *Error
	if errors.As(err, &e) && e.RV != CKR_OK {
		return e.RV, true
	}
	var rv RV
	if errors.As(err, &rv) {
		return rv, true
	}
	return 0, false
}

// KeyPair holds the handles of a generated pair.
type KeyPair struct {
	Public  ObjectHandle
	Private ObjectHandle
}

// GenerateKeyPair creates an Ed25519 pair from least-privilege
// templates built for the session's dialect. The returned handles are
// valid until the session closes.
func (s *Session) GenerateKeyPair(spec KeySpec) (KeyPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAuthLocked("generate key pair"); err != nil {
		return KeyPair{}, err
	}

	pubTpl := PublicTemplate(s.dialect, spec)
	privTpl := PrivateTemplate(spec)
	for _, tpl := range [][]Attribute{pubTpl, privTpl} {
		if err := ValidateTemplate(tpl); err != nil {
			return KeyPair{}, &Error{Op: "generate key pair", Err: err}
		}
	}

	pub, priv, err := s.mod.GenerateKeyPair(s.handle, s.dialect.KeyGenMechanism(), pubTpl, privTpl)
	if err != nil {
		return KeyPair{}, wrap("generate key pair", err)
	}
	return KeyPair{Public: pub, Private: priv}, nil
}

// FindKeyPair locates an existing pair by label. Missing halves yield
// ErrInvalidHandle.
func (s *Session) FindKeyPair(label string) (KeyPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAuthLocked("find key pair"); err != nil {
		return KeyPair{}, err
	}

	find := func(class uint) (ObjectHandle, error) {
		handles, err := s.mod.FindObjects(s.handle, []Attribute{
			NewAttribute(CKA_CLASS, class),
			NewAttribute(CKA_LABEL, label),
		})
		if err != nil {
			return 0, wrap("find objects", err)
		}
		if len(handles) == 0 {
			return 0, &Error{Op: "find objects", RV: CKR_OBJECT_HANDLE_INVALID,
				Err: fmt.Errorf("%w: no key labeled %q", ErrInvalidHandle, label)}
		}
		return handles[0], nil
	}

	pub, err := find(CKO_PUBLIC_KEY)
	if err != nil {
		return KeyPair{}, err
	}
	priv, err := find(CKO_PRIVATE_KEY)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Public: pub, Private: priv}, nil
}
