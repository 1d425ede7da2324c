package cmd

import (
	"io"
	"os"
)

// stdinSource is the special source path for reading from stdin.
const stdinSource = "-"

// openSource opens the given source path, returning stdin for "-".
// The caller owns the returned closer; closing stdin is a no-op.
func openSource(path string) (io.ReadCloser, error) {
	if path == stdinSource {
		return io.NopCloser(os.Stdin), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, ErrOpenSource.Wrap(err)
	}

	return file, nil
}

// readSource reads the full contents of the given source path.
func readSource(path string) (string, error) {
	r, err := openSource(path)
	if err != nil {
		return "", err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", ErrReadSource.Wrap(err)
	}

	return string(data), nil
}

// displayName renders the source path for diagnostics.
func displayName(path string) string {
	if path == stdinSource {
		return "<stdin>"
	}

	return path
}
