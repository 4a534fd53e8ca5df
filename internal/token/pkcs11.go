//go:build cgo

package token

import (
	"errors"
	"fmt"
	"strings"

	"github.com/miekg/pkcs11"
)

// pkcs11Module is the Module binding over a PKCS#11 shared library.
type pkcs11Module struct {
	ctx  *pkcs11.Ctx
	path string
}

// LoadModule loads and initializes a PKCS#11 library. A library that
// is already initialized in this process is accepted.
func LoadModule(path string) (Module, error) {
	ctx := pkcs11.New(path)
	if ctx == nil {
		return nil, fmt.Errorf("%w: failed to load PKCS#11 library %s", ErrTokenUnavailable, path)
	}

	if err := ctx.Initialize(); err != nil {
		var pe pkcs11.Error
		if !errors.As(err, &pe) || pe != pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED {
			ctx.Destroy()
			return nil, fmt.Errorf("failed to initialize PKCS#11 library: %w", ckError(err))
		}
	}

	return &pkcs11Module{ctx: ctx, path: path}, nil
}

// ckError rewrites miekg/pkcs11 errors as RV so the session layer can
// translate them. Other errors pass through.
func ckError(err error) error {
	var pe pkcs11.Error
	if errors.As(err, &pe) {
		return RV(uint(pe))
	}
	return err
}

func (m *pkcs11Module) Slots() ([]SlotInfo, error) {
	ids, err := m.ctx.GetSlotList(false)
	if err != nil {
		return nil, ckError(err)
	}

	infos := make([]SlotInfo, 0, len(ids))
	for _, id := range ids {
		info := SlotInfo{ID: uint(id)}
		if si, err := m.ctx.GetSlotInfo(id); err == nil {
			info.Description = strings.TrimSpace(si.SlotDescription)
		}
		if ti, err := m.ctx.GetTokenInfo(id); err == nil {
			info.HasToken = true
			info.TokenLabel = strings.TrimSpace(ti.Label)
			info.TokenSerial = strings.TrimSpace(ti.SerialNumber)
			info.Manufacturer = strings.TrimSpace(ti.ManufacturerID)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (m *pkcs11Module) OpenSession(slot uint) (SessionHandle, error) {
	h, err := m.ctx.OpenSession(slot, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		return 0, ckError(err)
	}
	return SessionHandle(h), nil
}

func (m *pkcs11Module) CloseSession(h SessionHandle) error {
	return ckError(m.ctx.CloseSession(pkcs11.SessionHandle(h)))
}

func (m *pkcs11Module) Login(h SessionHandle, pin string) error {
	return ckError(m.ctx.Login(pkcs11.SessionHandle(h), pkcs11.CKU_USER, pin))
}

func (m *pkcs11Module) Logout(h SessionHandle) error {
	return ckError(m.ctx.Logout(pkcs11.SessionHandle(h)))
}

func (m *pkcs11Module) GenerateKeyPair(h SessionHandle, mech Mechanism, public, private []Attribute) (ObjectHandle, ObjectHandle, error) {
	pub, priv, err := m.ctx.GenerateKeyPair(pkcs11.SessionHandle(h),
		[]*pkcs11.Mechanism{pkcs11.NewMechanism(mech.ID, nil)},
		toPKCS11Attrs(public), toPKCS11Attrs(private))
	if err != nil {
		return 0, 0, ckError(err)
	}
	return ObjectHandle(pub), ObjectHandle(priv), nil
}

func (m *pkcs11Module) SignInit(h SessionHandle, mech Mechanism, key ObjectHandle) error {
	return ckError(m.ctx.SignInit(pkcs11.SessionHandle(h),
		[]*pkcs11.Mechanism{pkcs11.NewMechanism(mech.ID, nil)}, pkcs11.ObjectHandle(key)))
}

func (m *pkcs11Module) Sign(h SessionHandle, message []byte) ([]byte, error) {
	sig, err := m.ctx.Sign(pkcs11.SessionHandle(h), message)
	if err != nil {
		return nil, ckError(err)
	}
	return sig, nil
}

func (m *pkcs11Module) VerifyInit(h SessionHandle, mech Mechanism, key ObjectHandle) error {
	return ckError(m.ctx.VerifyInit(pkcs11.SessionHandle(h),
		[]*pkcs11.Mechanism{pkcs11.NewMechanism(mech.ID, nil)}, pkcs11.ObjectHandle(key)))
}

func (m *pkcs11Module) Verify(h SessionHandle, message, signature []byte) error {
	return ckError(m.ctx.Verify(pkcs11.SessionHandle(h), message, signature))
}

func (m *pkcs11Module) GetAttributeValue(h SessionHandle, obj ObjectHandle, types []uint) ([]Attribute, error) {
	query := make([]*pkcs11.Attribute, len(types))
	for i, t := range types {
		query[i] = pkcs11.NewAttribute(t, nil)
	}
	attrs, err := m.ctx.GetAttributeValue(pkcs11.SessionHandle(h), pkcs11.ObjectHandle(obj), query)
	if err != nil {
		return nil, ckError(err)
	}
	out := make([]Attribute, len(attrs))
	for i, a := range attrs {
		out[i] = Attribute{Type: a.Type, Value: a.Value}
	}
	return out, nil
}

func (m *pkcs11Module) FindObjects(h SessionHandle, template []Attribute) ([]ObjectHandle, error) {
	sh := pkcs11.SessionHandle(h)
	if err := m.ctx.FindObjectsInit(sh, toPKCS11Attrs(template)); err != nil {
		return nil, ckError(err)
	}
	handles, _, err := m.ctx.FindObjects(sh, 16)
	if ferr := m.ctx.FindObjectsFinal(sh); err == nil {
		err = ferr
	}
	if err != nil {
		return nil, ckError(err)
	}
	out := make([]ObjectHandle, len(handles))
	for i, oh := range handles {
		out[i] = ObjectHandle(oh)
	}
	return out, nil
}

func (m *pkcs11Module) Close() error {
	err := m.ctx.Finalize()
	m.ctx.Destroy()
	if err != nil {
		var pe pkcs11.Error
		if errors.As(err, &pe) && pe == pkcs11.CKR_CRYPTOKI_NOT_INITIALIZED {
			return nil
		}
		return ckError(err)
	}
	return nil
}

func toPKCS11Attrs(attrs []Attribute) []*pkcs11.Attribute {
	out := make([]*pkcs11.Attribute, len(attrs))
	for i, a := range attrs {
		out[i] = &pkcs11.Attribute{Type: a.Type, Value: a.Value}
	}
	return out
}
