//go:build cgo

package token_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/verdane/tokenforge/internal/token"
)

const (
	softHSMTokenLabel = "tokenforge-test"
	softHSMPIN        = "1234"
	softHSMSOPIN      = "12345678"
)

// setupSoftHSM initializes a throwaway SoftHSM token and returns the
// library path. Skips the test when SoftHSM is not installed.
func setupSoftHSM(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("softhsm2-util"); err != nil {
		t.Skip("softhsm2-util not found, skipping PKCS#11 tests")
	}
	lib := findSoftHSMLib()
	if lib == "" {
		t.Skip("SoftHSM library not found, skipping PKCS#11 tests")
	}

	dir := t.TempDir()
	tokens := filepath.Join(dir, "tokens")
	if err := os.MkdirAll(tokens, 0700); err != nil {
		t.Fatalf("creating token directory: %v", err)
	}

	conf := filepath.Join(dir, "softhsm2.conf")
	content := "directories.tokendir = " + tokens + "\nobjectstore.backend = file\nlog.level = ERROR\n"
	if err := os.WriteFile(conf, []byte(content), 0600); err != nil {
		t.Fatalf("writing SoftHSM config: %v", err)
	}
	t.Setenv("SOFTHSM2_CONF", conf)

	cmd := exec.Command("softhsm2-util", "--init-token", "--free",
		"--label", softHSMTokenLabel,
		"--pin", softHSMPIN,
		"--so-pin", softHSMSOPIN)
	cmd.Env = append(os.Environ(), "SOFTHSM2_CONF="+conf)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("initializing SoftHSM token: %v\n%s", err, out)
	}
	return lib
}

func findSoftHSMLib() string {
	paths := []string{
		"/usr/local/lib/softhsm/libsofthsm2.so",
		"/usr/lib/softhsm/libsofthsm2.so",
		"/usr/lib64/softhsm/libsofthsm2.so",
		"/usr/lib/x86_64-linux-gnu/softhsm/libsofthsm2.so",
		"/opt/homebrew/lib/softhsm/libsofthsm2.so",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func TestE2E_SoftHSMWorkflow(t *testing.T) {
	lib := setupSoftHSM(t)

	mod, err := token.LoadModule(lib)
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	defer func() { _ = mod.Close() }()

	// SoftHSM takes the v3.0 Edwards form, not the vendor string.
	sess, err := token.Open(mod, token.Config{
		Token:   softHSMTokenLabel,
		PinEnv:  "UNUSED",
		Dialect: "standard",
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = sess.Close() }()

	if err := sess.Login(softHSMPIN); err != nil {
		t.Fatalf("Login: %v", err)
	}

	pair, err := sess.GenerateKeyPair(token.KeySpec{Label: "hw-key", ID: []byte{0x01}})
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	message := []byte("Message to be signed!!")
	sig, err := sess.SignMessage(pair.Private, message)
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}
	if len(sig) != 64 {
		t.Fatalf("signature is %d bytes, want 64", len(sig))
	}

	if err := sess.VerifyMessage(pair.Public, message, sig); err != nil {
		t.Errorf("VerifyMessage: %v", err)
	}

	pub, err := sess.PublicKeyValue(pair.Public)
	if err != nil {
		t.Fatalf("PublicKeyValue: %v", err)
	}
	if err := token.SoftVerify(pub, message, sig); err != nil {
		t.Errorf("SoftVerify against hardware signature: %v", err)
	}

	found, err := sess.FindKeyPair("hw-key")
	if err != nil {
		t.Fatalf("FindKeyPair: %v", err)
	}
	if _, err := sess.SignMessage(found.Private, message); err != nil {
		t.Errorf("signing with found handle: %v", err)
	}
}
