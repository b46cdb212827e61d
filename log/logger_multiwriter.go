package log

import (
	"errors"
	"fmt"
	"io"
)

var errDuplicateWriter = errors.New("writer registered twice")

// MultiWriter fans log lines out to writers
func MultiWriter(writers ...io.Writer) (*multiWriter, error) {
	mw := &multiWriter{}
	for _, w := range writers {
		if err := mw.Add(w); err != nil {
			return nil, err
		}
	}
	return mw, nil
}

// Add registers w. The same writer cannot be added twice
func (mw *multiWriter) Add(w io.Writer) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	for _, existing := range mw.writers {
		if existing == w {
			return fmt.Errorf("%w: %T", errDuplicateWriter, w)
		}
	}
	mw.writers = append(mw.writers, w)
	return nil
}

// Write hands p to every writer, so a failing log file does not silence the
// console. Failures are joined
func (mw *multiWriter) Write(p []byte) (int, error) {
	mw.mu.RLock()
	defer mw.mu.RUnlock()
	var errs error
	for _, w := range mw.writers {
		n, err := w.Write(p)
		if err == nil && n != len(p) {
			err = io.ErrShortWrite
		}
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("%T %w", w, err))
		}
	}
	if errs != nil {
		return 0, errs
	}
	return len(p), nil
}
