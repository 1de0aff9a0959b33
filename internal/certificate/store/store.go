// Package store persists imported certificate tokens so they can be
// exported by identifier.
package store

import (
	"certexport/internal/certificate/models"
)

func entryTypes(tok models.Token) []string {
	types := make([]string, 0, 3)
	for _, t := range tok.Certificate.EntryTypes() {
		types = append(types, string(t))
	}
	return types
}
