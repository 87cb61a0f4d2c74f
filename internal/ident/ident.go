// Package ident mints the opaque identifiers that key an upload, its job,
// its status and its stored files.
package ident

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/teris-io/shortid"

	"thumbnailer/internal/models"
)

// Generator returns a fresh identifier per call.
type Generator func() (string, error)

// New returns the generator for the configured id format.
func New(format string) (Generator, error) {
	switch format {
	case models.IDFormatUUID, "":
		return func() (string, error) {
			id, err := uuid.NewRandom()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		}, nil
	case models.IDFormatShortID:
		return shortid.Generate, nil
	default:
		return nil, fmt.Errorf("ident.New: unknown format %q", format)
	}
}
