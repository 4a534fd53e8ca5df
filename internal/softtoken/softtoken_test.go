package softtoken_test

import (
	"errors"
	"testing"

	"github.com/verdane/tokenforge/internal/softtoken"
	"github.com/verdane/tokenforge/internal/token"
)

func openAndLogin(t *testing.T) (*softtoken.Token, token.SessionHandle) {
	t.Helper()
	tok := softtoken.New("1234")
	h, err := tok.OpenSession(0)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	if err := tok.Login(h, "1234"); err != nil {
		t.Fatalf("login: %v", err)
	}
	return tok, h
}

func TestU_ReturnValues(t *testing.T) {
	tok := softtoken.New("1234")

	if _, err := tok.OpenSession(3); !errors.Is(err, token.CKR_SLOT_ID_INVALID) {
		t.Errorf("bad slot: %v", err)
	}

	h, err := tok.OpenSession(0)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	if err := tok.Login(h, "bad"); !errors.Is(err, token.CKR_PIN_INCORRECT) {
		t.Errorf("bad pin: %v", err)
	}
	if err := tok.Logout(h); !errors.Is(err, token.CKR_USER_NOT_LOGGED_IN) {
		t.Errorf("logout before login: %v", err)
	}
	if err := tok.Login(h, "1234"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := tok.Login(h, "1234"); !errors.Is(err, token.CKR_USER_ALREADY_LOGGED_IN) {
		t.Errorf("double login: %v", err)
	}
	if err := tok.CloseSession(h); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := tok.CloseSession(h); !errors.Is(err, token.CKR_SESSION_HANDLE_INVALID) {
		t.Errorf("double close: %v", err)
	}
}

func TestU_KeyGenMechanismChecks(t *testing.T) {
	tok, h := openAndLogin(t)

	spec := token.KeySpec{Label: "k", ID: []byte{1}}
	utimacoPub := token.PublicTemplate(token.DialectUtimaco, spec)
	standardPub := token.PublicTemplate(token.DialectStandard, spec)
	priv := token.PrivateTemplate(spec)

	// Unknown mechanism.
	if _, _, err := tok.GenerateKeyPair(h, token.Mechanism{ID: token.CKM_ECDSA}, utimacoPub, priv); !errors.Is(err, token.CKR_MECHANISM_INVALID) {
		t.Errorf("signing mechanism for keygen: %v", err)
	}

	// Mechanism and curve parameter form must agree.
	if _, _, err := tok.GenerateKeyPair(h, token.Mechanism{ID: token.CKM_EC_KEY_PAIR_GEN}, standardPub, priv); !errors.Is(err, token.CKR_TEMPLATE_INCONSISTENT) {
		t.Errorf("legacy mechanism with OID params: %v", err)
	}
	if _, _, err := tok.GenerateKeyPair(h, token.Mechanism{ID: token.CKM_EC_EDWARDS_KEY_PAIR_GEN}, utimacoPub, priv); !errors.Is(err, token.CKR_TEMPLATE_INCONSISTENT) {
		t.Errorf("edwards mechanism with named params: %v", err)
	}

	// Matching pairs work.
	if _, _, err := tok.GenerateKeyPair(h, token.Mechanism{ID: token.CKM_EC_KEY_PAIR_GEN}, utimacoPub, priv); err != nil {
		t.Errorf("utimaco keygen: %v", err)
	}
	if _, _, err := tok.GenerateKeyPair(h, token.Mechanism{ID: token.CKM_EC_EDWARDS_KEY_PAIR_GEN}, standardPub, priv); err != nil {
		t.Errorf("standard keygen: %v", err)
	}
}

func TestU_KeyGenTemplateChecks(t *testing.T) {
	tok, h := openAndLogin(t)

	spec := token.KeySpec{Label: "k", ID: []byte{1}}
	pub := token.PublicTemplate(token.DialectUtimaco, spec)

	// Sensitive and extractable at once.
	badPriv := []token.Attribute{
		token.NewAttribute(token.CKA_CLASS, token.CKO_PRIVATE_KEY),
		token.NewAttribute(token.CKA_SENSITIVE, true),
		token.NewAttribute(token.CKA_EXTRACTABLE, true),
		token.NewAttribute(token.CKA_SIGN, true),
		token.NewAttribute(token.CKA_LABEL, "k"),
	}
	if _, _, err := tok.GenerateKeyPair(h, token.Mechanism{ID: token.CKM_EC_KEY_PAIR_GEN}, pub, badPriv); !errors.Is(err, token.CKR_TEMPLATE_INCONSISTENT) {
		t.Errorf("sensitive+extractable: %v", err)
	}

	// Missing curve parameters.
	noParams := []token.Attribute{
		token.NewAttribute(token.CKA_CLASS, token.CKO_PUBLIC_KEY),
		token.NewAttribute(token.CKA_VERIFY, true),
	}
	if _, _, err := tok.GenerateKeyPair(h, token.Mechanism{ID: token.CKM_EC_KEY_PAIR_GEN}, noParams, token.PrivateTemplate(spec)); !errors.Is(err, token.CKR_TEMPLATE_INCOMPLETE) {
		t.Errorf("missing EC params: %v", err)
	}
}

func TestU_SignRequiresUsableKey(t *testing.T) {
	tok, h := openAndLogin(t)

	spec := token.KeySpec{Label: "k", ID: []byte{1}}
	pub, priv, err := tok.GenerateKeyPair(h, token.Mechanism{ID: token.CKM_EC_KEY_PAIR_GEN},
		token.PublicTemplate(token.DialectUtimaco, spec), token.PrivateTemplate(spec))
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}

	// Signing with the public half is a key handle error.
	if err := tok.SignInit(h, token.Mechanism{ID: token.CKM_ECDSA}, pub); !errors.Is(err, token.CKR_KEY_HANDLE_INVALID) {
		t.Errorf("sign init with public key: %v", err)
	}
	// Verifying with the private half likewise.
	if err := tok.VerifyInit(h, token.Mechanism{ID: token.CKM_ECDSA}, priv); !errors.Is(err, token.CKR_KEY_HANDLE_INVALID) {
		t.Errorf("verify init with private key: %v", err)
	}
}

func TestU_HandlesStaleAfterSessionClose(t *testing.T) {
	tok, h := openAndLogin(t)

	spec := token.KeySpec{Label: "k", ID: []byte{1}}
	pub, priv, err := tok.GenerateKeyPair(h, token.Mechanism{ID: token.CKM_EC_KEY_PAIR_GEN},
		token.PublicTemplate(token.DialectUtimaco, spec), token.PrivateTemplate(spec))
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	if err := tok.CloseSession(h); err != nil {
		t.Fatalf("close: %v", err)
	}

	h2, err := tok.OpenSession(0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := tok.Login(h2, "1234"); err != nil {
		t.Fatalf("login: %v", err)
	}

	// Handles from the closed session no longer resolve.
	if _, err := tok.GetAttributeValue(h2, pub, []uint{token.CKA_LABEL}); !errors.Is(err, token.CKR_OBJECT_HANDLE_INVALID) {
		t.Errorf("stale public handle: %v", err)
	}
	if err := tok.SignInit(h2, token.Mechanism{ID: token.CKM_ECDSA}, priv); !errors.Is(err, token.CKR_KEY_HANDLE_INVALID) {
		t.Errorf("stale private handle: %v", err)
	}

	// The objects themselves survive and can be relocated.
	found, err := tok.FindObjects(h2, []token.Attribute{
		token.NewAttribute(token.CKA_CLASS, token.CKO_PRIVATE_KEY),
		token.NewAttribute(token.CKA_LABEL, "k"),
	})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(found) != 1 || found[0] == priv {
		t.Fatalf("relocated handles = %v", found)
	}
	if err := tok.SignInit(h2, token.Mechanism{ID: token.CKM_ECDSA}, found[0]); err != nil {
		t.Errorf("sign init with relocated handle: %v", err)
	}
}

func TestU_OperationStateReturnValues(t *testing.T) {
	tok, h := openAndLogin(t)

	spec := token.KeySpec{Label: "k", ID: []byte{1}}
	_, priv, err := tok.GenerateKeyPair(h, token.Mechanism{ID: token.CKM_EC_KEY_PAIR_GEN},
		token.PublicTemplate(token.DialectUtimaco, spec), token.PrivateTemplate(spec))
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}

	if _, err := tok.Sign(h, []byte("m")); !errors.Is(err, token.CKR_OPERATION_NOT_INITIALIZED) {
		t.Errorf("sign without init: %v", err)
	}
	if err := tok.SignInit(h, token.Mechanism{ID: token.CKM_ECDSA}, priv); err != nil {
		t.Fatalf("sign init: %v", err)
	}
	if err := tok.SignInit(h, token.Mechanism{ID: token.CKM_ECDSA}, priv); !errors.Is(err, token.CKR_OPERATION_ACTIVE) {
		t.Errorf("double init: %v", err)
	}
	if _, err := tok.Sign(h, []byte("m")); err != nil {
		t.Errorf("sign: %v", err)
	}
	if _, err := tok.Sign(h, []byte("m")); !errors.Is(err, token.CKR_OPERATION_NOT_INITIALIZED) {
		t.Errorf("sign after completion: %v", err)
	}
}
