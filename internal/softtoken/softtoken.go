// Package softtoken is an in-memory token implementing token.Module
// with Cryptoki semantics: login gating, template consistency checks,
// attribute sensitivity, the 0x04 0x20 EC-point framing, and raw
// deterministic Ed25519 signing. It stands in for an HSM in tests and
// in development setups without hardware.
package softtoken

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"sync"

	"github.com/verdane/tokenforge/internal/token"
)

// Option configures a Token.
type Option func(*Token)

// WithLabel sets the token label reported in slot info.
func WithLabel(label string) Option {
	return func(t *Token) { t.label = label }
}

// WithSerial sets the token serial reported in slot info.
func WithSerial(serial string) Option {
	return func(t *Token) { t.serial = serial }
}

// Token is a single-slot in-memory token.
type Token struct {
	mu       sync.Mutex
	pin      string
	label    string
	serial   string
	sessions map[token.SessionHandle]*session
	objects  map[token.ObjectHandle]*object
	nextSess token.SessionHandle
	nextObj  token.ObjectHandle
	closed   bool
}

type opKind int

const (
	opNone opKind = iota
	opSign
	opVerify
)

type session struct {
	loggedIn bool
	op       opKind
	opKey    token.ObjectHandle
}

type object struct {
	class uint
	attrs map[uint][]byte
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
}

var _ token.Module = (*Token)(nil)

// New creates a token that accepts the given user PIN.
func New(pin string, opts ...Option) *Token {
	t := &Token{
		pin:      pin,
		label:    "softtoken",
		serial:   "SOFT0001",
		sessions: make(map[token.SessionHandle]*session),
		objects:  make(map[token.ObjectHandle]*object),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Token) Slots() ([]token.SlotInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, token.CKR_CRYPTOKI_NOT_INITIALIZED
	}
	return []token.SlotInfo{{
		ID:           0,
		Description:  "in-memory token slot",
		HasToken:     true,
		TokenLabel:   t.label,
		TokenSerial:  t.serial,
		Manufacturer: "tokenforge",
	}}, nil
}

func (t *Token) OpenSession(slot uint) (token.SessionHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, token.CKR_CRYPTOKI_NOT_INITIALIZED
	}
	if slot != 0 {
		return 0, token.CKR_SLOT_ID_INVALID
	}
	t.nextSess++
	h := t.nextSess
	t.sessions[h] = &session{}
	return h, nil
}

func (t *Token) CloseSession(h token.SessionHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[h]; !ok {
		return token.CKR_SESSION_HANDLE_INVALID
	}
	delete(t.sessions, h)

	// Object handles are only valid within the sessions that observed
	// them. The objects themselves survive, but under fresh handles, so
	// stale handles from the closed session stop resolving. Later
	// sessions relocate objects through FindObjects.
	renumbered := make(map[token.ObjectHandle]*object, len(t.objects))
	for _, obj := range t.objects {
		t.nextObj++
		renumbered[t.nextObj] = obj
	}
	t.objects = renumbered
	return nil
}

func (t *Token) Login(h token.SessionHandle, pin string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[h]
	if !ok {
		return token.CKR_SESSION_HANDLE_INVALID
	}
	if s.loggedIn {
		return token.CKR_USER_ALREADY_LOGGED_IN
	}
	if pin != t.pin {
		return token.CKR_PIN_INCORRECT
	}
	s.loggedIn = true
	return nil
}

func (t *Token) Logout(h token.SessionHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[h]
	if !ok {
		return token.CKR_SESSION_HANDLE_INVALID
	}
	if !s.loggedIn {
		return token.CKR_USER_NOT_LOGGED_IN
	}
	s.loggedIn = false
	return nil
}

func (t *Token) GenerateKeyPair(h token.SessionHandle, m token.Mechanism, public, private []token.Attribute) (token.ObjectHandle, token.ObjectHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[h]
	if !ok {
		return 0, 0, token.CKR_SESSION_HANDLE_INVALID
	}
	if !s.loggedIn {
		return 0, 0, token.CKR_USER_NOT_LOGGED_IN
	}

	pubAttrs := attrMap(public)
	privAttrs := attrMap(private)

	params, ok := pubAttrs[token.CKA_EC_PARAMS]
	if !ok {
		return 0, 0, token.CKR_TEMPLATE_INCOMPLETE
	}

	// The mechanism must agree with the curve parameter form: the
	// legacy EC mechanism pairs with the named-curve string, the
	// Edwards mechanism with the id-Ed25519 OID.
	named := bytes.Equal(params, []byte("edwards25519"))
	oid := bytes.Equal(params, []byte{0x06, 0x03, 0x2B, 0x65, 0x70})
	switch m.ID {
	case token.CKM_EC_KEY_PAIR_GEN:
		if !named {
			return 0, 0, token.CKR_TEMPLATE_INCONSISTENT
		}
	case token.CKM_EC_EDWARDS_KEY_PAIR_GEN:
		if !oid {
			return 0, 0, token.CKR_TEMPLATE_INCONSISTENT
		}
	default:
		return 0, 0, token.CKR_MECHANISM_INVALID
	}

	if boolVal(privAttrs, token.CKA_SENSITIVE) && boolVal(privAttrs, token.CKA_EXTRACTABLE) {
		return 0, 0, token.CKR_TEMPLATE_INCONSISTENT
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return 0, 0, token.CKR_GENERAL_ERROR
	}

	pubObj := &object{class: token.CKO_PUBLIC_KEY, pub: pub, attrs: cloneAttrs(pubAttrs)}
	pubObj.attrs[token.CKA_VALUE] = []byte(pub)
	pubObj.attrs[token.CKA_EC_POINT] = append([]byte{0x04, 0x20}, pub...)

	privObj := &object{class: token.CKO_PRIVATE_KEY, priv: priv, pub: pub, attrs: cloneAttrs(privAttrs)}
	privObj.attrs[token.CKA_VALUE] = []byte(priv.Seed())

	pubHandle := t.addObject(pubObj)
	privHandle := t.addObject(privObj)
	return pubHandle, privHandle, nil
}

func (t *Token) addObject(o *object) token.ObjectHandle {
	t.nextObj++
	t.objects[t.nextObj] = o
	return t.nextObj
}

func (t *Token) SignInit(h token.SessionHandle, m token.Mechanism, key token.ObjectHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[h]
	if !ok {
		return token.CKR_SESSION_HANDLE_INVALID
	}
	if !s.loggedIn {
		return token.CKR_USER_NOT_LOGGED_IN
	}
	if s.op != opNone {
		return token.CKR_OPERATION_ACTIVE
	}
	if m.ID != token.CKM_ECDSA && m.ID != token.CKM_EDDSA {
		return token.CKR_MECHANISM_INVALID
	}
	obj, ok := t.objects[key]
	if !ok {
		return token.CKR_KEY_HANDLE_INVALID
	}
	if obj.class != token.CKO_PRIVATE_KEY || !boolVal(obj.attrs, token.CKA_SIGN) {
		return token.CKR_KEY_HANDLE_INVALID
	}
	s.op, s.opKey = opSign, key
	return nil
}

func (t *Token) Sign(h token.SessionHandle, message []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[h]
	if !ok {
		return nil, token.CKR_SESSION_HANDLE_INVALID
	}
	if s.op != opSign {
		return nil, token.CKR_OPERATION_NOT_INITIALIZED
	}
	obj := t.objects[s.opKey]
	s.op, s.opKey = opNone, 0

	if obj == nil {
		return nil, token.CKR_KEY_HANDLE_INVALID
	}
	// Raw signing over the full message, no internal digest.
	return ed25519.Sign(obj.priv, message), nil
}

func (t *Token) VerifyInit(h token.SessionHandle, m token.Mechanism, key token.ObjectHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[h]
	if !ok {
		return token.CKR_SESSION_HANDLE_INVALID
	}
	if !s.loggedIn {
		return token.CKR_USER_NOT_LOGGED_IN
	}
	if s.op != opNone {
		return token.CKR_OPERATION_ACTIVE
	}
	if m.ID != token.CKM_ECDSA && m.ID != token.CKM_EDDSA {
		return token.CKR_MECHANISM_INVALID
	}
	obj, ok := t.objects[key]
	if !ok {
		return token.CKR_KEY_HANDLE_INVALID
	}
	if obj.class != token.CKO_PUBLIC_KEY || !boolVal(obj.attrs, token.CKA_VERIFY) {
		return token.CKR_KEY_HANDLE_INVALID
	}
	s.op, s.opKey = opVerify, key
	return nil
}

func (t *Token) Verify(h token.SessionHandle, message, signature []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[h]
	if !ok {
		return token.CKR_SESSION_HANDLE_INVALID
	}
	if s.op != opVerify {
		return token.CKR_OPERATION_NOT_INITIALIZED
	}
	obj := t.objects[s.opKey]
	s.op, s.opKey = opNone, 0

	if obj == nil {
		return token.CKR_KEY_HANDLE_INVALID
	}
	if len(signature) != ed25519.SignatureSize {
		return token.CKR_SIGNATURE_LEN_RANGE
	}
	if !ed25519.Verify(obj.pub, message, signature) {
		return token.CKR_SIGNATURE_INVALID
	}
	return nil
}

func (t *Token) GetAttributeValue(h token.SessionHandle, objHandle token.ObjectHandle, types []uint) ([]token.Attribute, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[h]
	if !ok {
		return nil, token.CKR_SESSION_HANDLE_INVALID
	}
	if !s.loggedIn {
		return nil, token.CKR_USER_NOT_LOGGED_IN
	}
	obj, ok := t.objects[objHandle]
	if !ok {
		return nil, token.CKR_OBJECT_HANDLE_INVALID
	}

	out := make([]token.Attribute, 0, len(types))
	for _, typ := range types {
		if typ == token.CKA_VALUE && obj.class == token.CKO_PRIVATE_KEY && boolVal(obj.attrs, token.CKA_SENSITIVE) {
			return nil, token.CKR_ATTRIBUTE_SENSITIVE
		}
		v, ok := obj.attrs[typ]
		if !ok {
			return nil, token.CKR_ATTRIBUTE_TYPE_INVALID
		}
		out = append(out, token.Attribute{Type: typ, Value: append([]byte(nil), v...)})
	}
	return out, nil
}

func (t *Token) FindObjects(h token.SessionHandle, template []token.Attribute) ([]token.ObjectHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[h]
	if !ok {
		return nil, token.CKR_SESSION_HANDLE_INVALID
	}
	if !s.loggedIn {
		return nil, token.CKR_USER_NOT_LOGGED_IN
	}

	var handles []token.ObjectHandle
	for handle, obj := range t.objects {
		match := true
		for _, want := range template {
			got, ok := obj.attrs[want.Type]
			if !ok || !bytes.Equal(got, want.Value) {
				match = false
				break
			}
		}
		if match {
			handles = append(handles, handle)
		}
	}
	return handles, nil
}

// Close finalizes the token. Sessions and objects are gone afterwards.
func (t *Token) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.sessions = make(map[token.SessionHandle]*session)
	t.objects = make(map[token.ObjectHandle]*object)
	return nil
}

func attrMap(attrs []token.Attribute) map[uint][]byte {
	m := make(map[uint][]byte, len(attrs))
	for _, a := range attrs {
		m[a.Type] = a.Value
	}
	return m
}

func cloneAttrs(m map[uint][]byte) map[uint][]byte {
	out := make(map[uint][]byte, len(m))
	for k, v := range m {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

func boolVal(m map[uint][]byte, typ uint) bool {
	v, ok := m[typ]
	return ok && len(v) == 1 && v[0] != 0
}
