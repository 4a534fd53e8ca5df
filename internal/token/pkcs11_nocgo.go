//go:build !cgo

package token

import "fmt"

// LoadModule requires cgo for the PKCS#11 binding. Builds without cgo
// can still use the in-memory token from internal/softtoken.
func LoadModule(path string) (Module, error) {
	return nil, fmt.Errorf("PKCS#11 support requires cgo; cannot load %s", path)
}
