package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/verdane/tokenforge/internal/audit"
	"github.com/verdane/tokenforge/internal/token"
)

// withSession runs fn inside a fully set up token session: config
// loaded, module initialized, session opened and authenticated, audit
// writer ready. Teardown always runs; a teardown error surfaces only
// when fn itself succeeded.
func withSession(configPath string, fn func(*token.Session, *token.Config, audit.Writer) error) (err error) {
	cfg, err := token.LoadConfig(configPath)
	if err != nil {
		return err
	}

	mod, err := token.LoadModule(cfg.Lib)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := mod.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return runSession(mod, cfg, fn)
}

// runSession opens and authenticates a session on mod, then runs fn
// with the audit trail ready. Session open, session close and failed
// authentication are audited; an audit write failure fails the
// operation.
func runSession(mod token.Module, cfg *token.Config, fn func(*token.Session, *token.Config, audit.Writer) error) (err error) {
	sess, err := token.Open(mod, *cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	aud, err := openAudit(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := aud.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	defer func() {
		ev := audit.NewEvent(audit.EventSessionClosed, audit.ResultSuccess).
			WithContext(audit.Context{Token: cfg.Token, Slot: sess.Slot()})
		if werr := aud.Write(ev); werr != nil && err == nil {
			err = werr
		}
	}()

	pin, err := cfg.GetPIN()
	if err != nil {
		return err
	}
	if err := sess.Login(pin); err != nil {
		ev := audit.NewEvent(audit.EventAuthFailed, audit.ResultFailure).
			WithContext(audit.Context{Token: cfg.Token, Slot: sess.Slot(), Reason: err.Error()})
		if werr := aud.Write(ev); werr != nil {
			return werr
		}
		return err
	}
	ev := audit.NewEvent(audit.EventSessionOpened, audit.ResultSuccess).
		WithContext(audit.Context{Token: cfg.Token, Slot: sess.Slot(), Dialect: sess.Dialect().String()})
	if err := aud.Write(ev); err != nil {
		return err
	}

	return fn(sess, cfg, aud)
}

// resolveKeyID decodes an explicit hex CKA_ID, or picks a random
// 4-byte one so distinct pairs never share an ID by default.
func resolveKeyID(hexID string) ([]byte, error) {
	if hexID == "" {
		id := make([]byte, 4)
		if _, err := rand.Read(id); err != nil {
			return nil, err
		}
		return id, nil
	}
	id, err := hex.DecodeString(hexID)
	if err != nil {
		return nil, fmt.Errorf("--id must be hex: %w", err)
	}
	return id, nil
}

// openAudit returns the configured audit writer, or a no-op one.
func openAudit(cfg *token.Config) (audit.Writer, error) {
	if cfg.AuditLog == "" {
		return audit.NopWriter{}, nil
	}
	w, err := audit.NewFileWriter(cfg.AuditLog)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return w, nil
}

// requireLabel resolves the key label from the flag or the config.
func requireLabel(flagLabel string, cfg *token.Config) (string, error) {
	if flagLabel != "" {
		return flagLabel, nil
	}
	if cfg.Label != "" {
		return cfg.Label, nil
	}
	return "", fmt.Errorf("no key label: pass --label or set label in the config")
}

// maskSerial partially masks a serial number for display.
func maskSerial(serial string) string {
	serial = strings.TrimSpace(serial)
	if len(serial) <= 4 {
		return serial
	}
	return serial[:3] + strings.Repeat("*", len(serial)-4) + serial[len(serial)-1:]
}
