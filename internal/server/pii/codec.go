package pii

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dstepanovs/teamplan/internal/common"
	"github.com/dstepanovs/teamplan/internal/cryptox"
	"github.com/dstepanovs/teamplan/internal/logging"
)

// Codec applies the per-kind field specs on top of a FieldCipher. It is the
// only place ciphertext and plaintext records meet: route handlers hand it
// plaintext on the way to the store and raw store output on the way back.
// Safe for concurrent use.
type Codec struct {
	cipher *cryptox.FieldCipher
	log    logging.Logger

	// legacyFallbacks counts declared-encrypted values that were stored as
	// plaintext and passed through undecrypted. Tamper detection is off for
	// those values, so occurrences are logged and counted.
	legacyFallbacks atomic.Int64
}

func NewCodec(cipher *cryptox.FieldCipher, log logging.Logger) *Codec {
	return &Codec{cipher: cipher, log: log.With("module", "pii")}
}

// EncryptEntity returns a copy of rec with every declared encrypted field
// replaced by its envelope. Fields absent from rec or holding nil pass
// through; so does everything not named in the kind's field spec, including
// nested relation values.
func (c *Codec) EncryptEntity(kind Kind, rec Record) (Record, error) {
	out := cloneRecord(rec)
	for _, field := range EncryptedFields(kind) {
		value, ok := out[field]
		if !ok || value == nil {
			continue
		}
		plaintext, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s is not a string", common.ErrValidation, kind, field)
		}
		stored, err := c.cipher.Encrypt(plaintext)
		if err != nil {
			return nil, fmt.Errorf("encrypting %s.%s: %w", kind, field, err)
		}
		out[field] = stored
	}
	return out, nil
}

// DecryptEntity reverses EncryptEntity for one record. A declared-encrypted
// value that is not an envelope is returned unchanged: records written before
// encryption was introduced are still readable. The fallback is deliberate
// and observable via LegacyFallbacks; a value that is an envelope but fails
// authentication is an error.
func (c *Codec) DecryptEntity(ctx context.Context, kind Kind, rec Record) (Record, error) {
	out := cloneRecord(rec)
	for _, field := range EncryptedFields(kind) {
		value, ok := out[field]
		if !ok || value == nil {
			continue
		}
		stored, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s is not a string", common.ErrValidation, kind, field)
		}
		if !cryptox.IsEncrypted(stored) {
			c.legacyFallbacks.Add(1)
			c.log.Warn(ctx, "legacy plaintext value", "kind", string(kind), "field", field)
			continue
		}
		plaintext, err := c.cipher.Decrypt(stored)
		if err != nil {
			return nil, fmt.Errorf("decrypting %s.%s: %w", kind, field, err)
		}
		out[field] = plaintext
	}
	return out, nil
}

// LegacyFallbacks returns how many plaintext passthroughs occurred since the
// codec was built.
func (c *Codec) LegacyFallbacks() int64 {
	return c.legacyFallbacks.Load()
}

// cloneRecord copies the top-level map so callers never see a half-ciphered
// record and the store's raw output is never mutated in place. Nested values
// are shared; the graph decryptor clones each level it touches.
func cloneRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
