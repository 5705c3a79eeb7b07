package workload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// Current schema version - increment when SweepReport format changes
const reportSchemaVersion uint16 = 1

// ErrReportSchema reports a sweep report written by an incompatible version.
var ErrReportSchema = errors.New("unsupported sweep report schema")

// EncodeReport writes rep to w as msgpack.
func EncodeReport(w io.Writer, rep *SweepReport) error {
	return msgpack.NewEncoder(w).Encode(rep)
}

// DecodeReport reads a msgpack sweep report from r.
func DecodeReport(r io.Reader) (*SweepReport, error) {
	var rep SweepReport
	if err := msgpack.NewDecoder(r).Decode(&rep); err != nil {
		return nil, err
	}
	if rep.Schema != reportSchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrReportSchema, rep.Schema)
	}
	return &rep, nil
}

// WriteReportFile replaces path with rep atomically.
func WriteReportFile(path string, rep *SweepReport) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if err = EncodeReport(f, rep); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// ReadReportFile loads a report written by WriteReportFile.
func ReadReportFile(path string) (*SweepReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "failed to close report file: %v\n", closeErr)
		}
	}()
	return DecodeReport(f)
}
