// Copyright 2019 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS-IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package input

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
)

// OpenRaw opens path as an uncompressed Raw-encoded shard.
func OpenRaw(path string) (Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("input: opening %s: %w", path, err)
	}
	return newRawReader(f, f), nil
}

// OpenGzip opens path as a gzip-compressed (".gz") Raw-encoded shard. It is
// one of the two concrete codec backends this package ships to exercise
// the Decompressor seam end to end; zip/snappy/lz4 remain registration
// points for a front end to supply (see RegisterCodec).
func OpenGzip(path string) (Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("input: opening %s: %w", path, err)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("input: %s is not a valid gzip stream: %w", path, err)
	}
	return newRawReader(gz, multiCloser{gz, f}), nil
}

// multiCloser closes each Closer in order, returning the first error.
type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Decompressor produces a plain byte stream (the Raw wire format, §wire.go)
// from a compressed shard file. Concrete codec backends beyond Raw and
// Gzip are external collaborators per the core's scope; RegisterCodec is
// the seam a front end uses to wire one in (e.g. zip, snappy, or lz4
// readers) without this package depending on their libraries.
type Decompressor func(path string) (io.ReadCloser, error)

var codecsByExt = map[string]Decompressor{}

// RegisterCodec associates a file extension (including the leading dot,
// e.g. ".sz") with a Decompressor. OpenShard uses the registry to dispatch
// by extension.
func RegisterCodec(ext string, d Decompressor) {
	codecsByExt[ext] = d
}

// OpenShard opens path, dispatching on its extension: ".gz" uses the
// built-in gzip backend, a registered extension uses its Decompressor, and
// anything else is treated as Raw.
func OpenShard(path string) (Stream, error) {
	ext := extOf(path)
	switch ext {
	case ".gz":
		return OpenGzip(path)
	case "":
		return OpenRaw(path)
	default:
		if d, ok := codecsByExt[ext]; ok {
			rc, err := d(path)
			if err != nil {
				return nil, fmt.Errorf("input: decompressing %s: %w", path, err)
			}
			return newRawReader(rc, rc), nil
		}
		return OpenRaw(path)
	}
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i:]
		}
	}
	return ""
}
