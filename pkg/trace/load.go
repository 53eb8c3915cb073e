package trace

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-kit/log/level"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	flamecontext "github.com/grafana/flametrace/pkg/context"
	"github.com/grafana/flametrace/pkg/model"
)

// fileExtensions lists the per-section file names probed in a trace
// directory, in order of preference.
var fileExtensions = []string{".json", ".json.gz", ".json.zst"}

// Load reads the trace at path. A directory is read with LoadDir; a file is
// decoded with Decode after transparent gzip or zstd decompression.
func Load(ctx context.Context, fs afero.Fs, path string, required ...Section) (*model.Trace, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "stat trace")
	}
	if info.IsDir() {
		return LoadDir(ctx, fs, path, required...)
	}

	start := time.Now()
	data, err := readFile(ctx, fs, path)
	if err != nil {
		return nil, err
	}
	t, err := Decode(bytes.NewReader(data), required...)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	logLoaded(ctx, path, t, start)
	return t, nil
}

// LoadDir reads a trace written as one file per section, as the collector
// does. Section files are decoded concurrently. Sections without a file are
// empty unless listed in required.
func LoadDir(ctx context.Context, fs afero.Fs, dir string, required ...Section) (*model.Trace, error) {
	start := time.Now()
	parts := make([]*builder, len(Sections))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range Sections {
		g.Go(func() error {
			path, ok, err := findSectionFile(fs, dir, s)
			if err != nil || !ok {
				return err
			}
			data, err := readFile(gctx, fs, path)
			if err != nil {
				return err
			}
			b, err := decodeSection(data, s)
			if err != nil {
				return errors.Wrapf(err, "decode %s", path)
			}
			parts[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b := newBuilder()
	for _, p := range parts {
		if p != nil {
			b.merge(p)
		}
	}
	t, err := b.finish(required)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", dir)
	}
	logLoaded(ctx, dir, t, start)
	return t, nil
}

func findSectionFile(fs afero.Fs, dir string, s Section) (string, bool, error) {
	for _, ext := range fileExtensions {
		path := filepath.Join(dir, string(s)+ext)
		_, err := fs.Stat(path)
		if err == nil {
			return path, true, nil
		}
		if !os.IsNotExist(err) {
			return "", false, errors.Wrapf(err, "stat %s", path)
		}
	}
	return "", false, nil
}

func readFile(ctx context.Context, fs afero.Fs, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	data, err = decompress(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decompress %s", path)
	}
	return data, nil
}

// decompress detects gzip and zstd payloads by their magic bytes. Anything
// else is returned unchanged.
func decompress(data []byte) ([]byte, error) {
	switch {
	case len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "create gzip reader")
		}
		defer r.Close()
		return io.ReadAll(r)
	case len(data) >= 4 && data[0] == 0x28 && data[1] == 0xb5 && data[2] == 0x2f && data[3] == 0xfd:
		r, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "create zstd reader")
		}
		defer r.Close()
		return io.ReadAll(r)
	}
	return data, nil
}

func logLoaded(ctx context.Context, path string, t *model.Trace, start time.Time) {
	level.Debug(flamecontext.Logger(ctx)).Log(
		"msg", "trace loaded",
		"path", path,
		"spans", len(t.Spans),
		"allocations", len(t.Allocations),
		"throughput_samples", len(t.Throughput),
		"markers", len(t.Markers),
		"duration", time.Since(start),
	)
}
