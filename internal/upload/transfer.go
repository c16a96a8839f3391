package upload

import (
	"context"
	"fmt"
	"io"
)

// SendFunc streams body to the server
type SendFunc func(ctx context.Context, body io.Reader) error

// Transfer runs one upload through t: Start, stream body through a
// ProgressReader, then Finish. A failed send aborts the record and returns
// the error; no completion signal is raised for it.
func Transfer(ctx context.Context, t *Tracker, meta Meta, body io.Reader, size int64, send SendFunc) (ActiveUpload, error) {
	record, err := t.Start(meta)
	if err != nil {
		return ActiveUpload{}, err
	}

	if err := send(ctx, NewProgressReader(body, size, t.Update)); err != nil {
		t.Abort()
		return record, fmt.Errorf("uploading %s: %w", meta.FileName, err)
	}

	t.Finish()
	return record, nil
}
