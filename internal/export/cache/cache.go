// Package cache stores rendered documents keyed by what they were rendered
// from, so repeated exports of the same certificate skip the renderer.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	certmodels "certexport/internal/certificate/models"
	"certexport/internal/export/models"
)

// DefaultTTL is used when a cache is built without an explicit TTL.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "export:doc:"

// Key identifies a document by its template bytes, QR payload and
// selection. Any change to an input yields a new key.
func Key(template []byte, qrPayload string, selection certmodels.TemplateType) string {
	h := sha256.New()
	for _, part := range [][]byte{template, []byte(qrPayload), []byte(selection)} {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(part)))
		h.Write(n[:])
		h.Write(part)
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

type entry struct {
	ID          []byte `cbor:"1,keyasint"`
	Type        string `cbor:"2,keyasint"`
	ContentType string `cbor:"3,keyasint"`
	Data        []byte `cbor:"4,keyasint"`
	Pages       int    `cbor:"5,keyasint"`
	RenderedAt  int64  `cbor:"6,keyasint"`
	Certificate string `cbor:"7,keyasint,omitempty"`
}

func encode(doc *models.Document) ([]byte, error) {
	id, _ := doc.ID.MarshalBinary()
	return cbor.Marshal(entry{
		ID:          id,
		Type:        string(doc.Type),
		ContentType: doc.ContentType,
		Data:        doc.Data,
		Pages:       doc.Pages,
		RenderedAt:  doc.RenderedAt.UnixNano(),
		Certificate: doc.CertificateID,
	})
}

func decode(raw []byte) (*models.Document, error) {
	var e entry
	if err := cbor.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	id, err := uuid.FromBytes(e.ID)
	if err != nil {
		return nil, err
	}
	return &models.Document{
		ID:            id,
		CertificateID: e.Certificate,
		Type:          certmodels.TemplateType(e.Type),
		ContentType:   e.ContentType,
		Data:          e.Data,
		Pages:         e.Pages,
		RenderedAt:    time.Unix(0, e.RenderedAt).UTC(),
	}, nil
}
