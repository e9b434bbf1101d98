package pii

import (
	"context"
	"fmt"
)

// DecryptGraph decrypts rec and every nested relation record reachable
// through the declared relation paths for kind. Sibling order inside relation
// arrays is preserved; list rendering and pagination depend on it. A relation
// key that was not included in the original query is simply skipped, and a
// relation value of an unexpected shape (say, a bare foreign-key string) is
// left untouched.
func (c *Codec) DecryptGraph(ctx context.Context, kind Kind, rec Record) (Record, error) {
	out, err := c.DecryptEntity(ctx, kind, rec)
	if err != nil {
		return nil, err
	}

	for _, rel := range Relations(kind) {
		value, ok := out[rel.Key]
		if !ok || value == nil {
			continue
		}

		switch nested := value.(type) {
		case Record:
			decrypted, err := c.DecryptGraph(ctx, rel.Kind, nested)
			if err != nil {
				return nil, fmt.Errorf("relation %s.%s: %w", kind, rel.Key, err)
			}
			out[rel.Key] = decrypted
		case []Record:
			decrypted := make([]Record, len(nested))
			for i, item := range nested {
				d, err := c.DecryptGraph(ctx, rel.Kind, item)
				if err != nil {
					return nil, fmt.Errorf("relation %s.%s[%d]: %w", kind, rel.Key, i, err)
				}
				decrypted[i] = d
			}
			out[rel.Key] = decrypted
		case []any:
			decrypted := make([]any, len(nested))
			for i, item := range nested {
				child, ok := item.(Record)
				if !ok {
					decrypted[i] = item
					continue
				}
				d, err := c.DecryptGraph(ctx, rel.Kind, child)
				if err != nil {
					return nil, fmt.Errorf("relation %s.%s[%d]: %w", kind, rel.Key, i, err)
				}
				decrypted[i] = d
			}
			out[rel.Key] = decrypted
		}
	}

	return out, nil
}

// DecryptBatch maps DecryptGraph over records, index for index. A record that
// fails to decrypt yields a non-nil error at its position without aborting
// the rest; the caller decides whether to drop or propagate.
func (c *Codec) DecryptBatch(ctx context.Context, kind Kind, records []Record) ([]Record, []error) {
	out := make([]Record, len(records))
	errs := make([]error, len(records))
	for i, rec := range records {
		decrypted, err := c.DecryptGraph(ctx, kind, rec)
		if err != nil {
			errs[i] = err
			continue
		}
		out[i] = decrypted
	}
	return out, errs
}

// FirstBatchError returns the first non-nil error from a DecryptBatch result,
// for callers that propagate instead of dropping.
func FirstBatchError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
