// Package codec decodes health certificate tokens from their wire forms:
// the CWT claims map (CBOR), its JSON rendering, the COSE_Sign1 envelope,
// and the "HC1:" QR payload (base45 over zlib over COSE).
//
// Signatures are not checked here; tokens reaching this package have
// already been verified against the trust list.
package codec

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"certexport/internal/certificate/models"
	dErrors "certexport/pkg/domain-errors"
)

// QRPrefix marks an EU DCC QR payload.
const QRPrefix = "HC1:"

const coseSign1Tag = 18

// maxInflated caps decompressed COSE size; real certificates are a few KiB.
const maxInflated = 64 << 10

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{MaxNestedLevels: 16}.DecMode()
	if err != nil {
		panic(err)
	}
}

type coseSign1 struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected map[int]cbor.RawMessage
	Payload     []byte
	Signature   []byte
}

// DecodeJSON decodes the JSON rendering of the CWT claims map.
func DecodeJSON(data []byte) (models.Token, error) {
	var c cwtClaims
	if err := json.Unmarshal(data, &c); err != nil {
		return models.Token{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid certificate json")
	}
	return finish(c)
}

// EncodeJSON is the inverse of DecodeJSON.
func EncodeJSON(tok models.Token) ([]byte, error) {
	return json.Marshal(claimsFromToken(tok))
}

// DecodeCBOR decodes a CWT claims map.
func DecodeCBOR(data []byte) (models.Token, error) {
	var c cwtClaims
	if err := decMode.Unmarshal(data, &c); err != nil {
		return models.Token{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid certificate cbor")
	}
	return finish(c)
}

// EncodeCBOR encodes a token's claims map with deterministic encoding.
func EncodeCBOR(tok models.Token) ([]byte, error) {
	return encMode.Marshal(claimsFromToken(tok))
}

// DecodeCOSE unwraps a COSE_Sign1 message, tagged or not, and decodes its
// claims payload.
func DecodeCOSE(data []byte) (models.Token, error) {
	content := data
	var tag cbor.RawTag
	if err := decMode.Unmarshal(data, &tag); err == nil {
		if tag.Number != coseSign1Tag {
			return models.Token{}, dErrors.New(dErrors.CodeValidation, "unexpected cose tag")
		}
		content = tag.Content
	}
	var msg coseSign1
	if err := decMode.Unmarshal(content, &msg); err != nil {
		return models.Token{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid cose message")
	}
	return DecodeCBOR(msg.Payload)
}

// DecodeQR decodes an "HC1:" payload. The payload itself is kept on the
// token as the canonical QR content.
func DecodeQR(payload string) (models.Token, error) {
	body, ok := strings.CutPrefix(strings.TrimSpace(payload), QRPrefix)
	if !ok {
		return models.Token{}, dErrors.New(dErrors.CodeValidation, "missing HC1 prefix")
	}
	raw, err := Base45Decode(body)
	if err != nil {
		return models.Token{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid base45 payload")
	}
	// zlib streams start with 0x78; uncompressed COSE is accepted as is.
	if len(raw) > 0 && raw[0] == 0x78 {
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return models.Token{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid zlib payload")
		}
		defer zr.Close()
		raw, err = io.ReadAll(io.LimitReader(zr, maxInflated))
		if err != nil {
			return models.Token{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid zlib payload")
		}
	}
	tok, err := DecodeCOSE(raw)
	if err != nil {
		return models.Token{}, err
	}
	tok.QRPayload = strings.TrimSpace(payload)
	return tok, nil
}

// EncodeQR builds an "HC1:" payload around an unsigned COSE_Sign1 message.
// It exists for fixtures and local tooling; production payloads come
// signed from the issuer.
func EncodeQR(tok models.Token) (string, error) {
	claims, err := EncodeCBOR(tok)
	if err != nil {
		return "", err
	}
	protected, err := encMode.Marshal(map[int]int{1: -7})
	if err != nil {
		return "", err
	}
	msg, err := encMode.Marshal(cbor.Tag{
		Number: coseSign1Tag,
		Content: coseSign1{
			Protected:   protected,
			Unprotected: map[int]cbor.RawMessage{},
			Payload:     claims,
			Signature:   []byte{},
		},
	})
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return "", err
	}
	if _, err := zw.Write(msg); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return QRPrefix + Base45Encode(buf.Bytes()), nil
}

func finish(c cwtClaims) (models.Token, error) {
	tok, err := c.toToken()
	if err != nil {
		return models.Token{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid certificate")
	}
	if tok.ID() == "" {
		return models.Token{}, dErrors.New(dErrors.CodeValidation, "certificate has no entries")
	}
	return tok, nil
}
