package widgets

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	idLength   = 8
)

// IDProvider issues widget identifiers.
type IDProvider interface {
	NewID() (string, error)
}

type nanoIDProvider struct{}

// NewNanoIDProvider constructs an IDProvider issuing short lowercase
// alphanumeric tokens. They are short enough to paste into embed snippets
// and are not collision resistant.
func NewNanoIDProvider() IDProvider {
	return &nanoIDProvider{}
}

func (p *nanoIDProvider) NewID() (string, error) {
	id, err := gonanoid.Generate(idAlphabet, idLength)
	if err != nil {
		return "", fmt.Errorf("generate widget id: %w", err)
	}
	return id, nil
}
