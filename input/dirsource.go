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
// dirsource.go implements deterministic shard discovery for one workload's
// directory of files, grounded on traceparser/path.go's WalkPerCPUDir: walk
// a flat directory, skip subdirectories and known auxiliary files, and
// order the remaining filenames by sorting them rather than by trusting
// directory iteration order.

package input

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// AuxiliaryBasenames are well-known non-shard filenames that DirSource
// skips during discovery: the module list, function list, encoding list,
// v2p list, serial-schedule, and cpu-schedule files a trace directory may
// also contain.
var AuxiliaryBasenames = map[string]bool{
	"modules.log":      true,
	"funclist.log":     true,
	"encoding.log":     true,
	"v2p.log":          true,
	"serial_schedule":  true,
	"cpu_schedule":     true,
}

// DiscoverShards returns the shard file paths in dir, sorted by filename
// (zero-padded numeric filenames sort correctly as plain strings), skipping
// entries in AuxiliaryBasenames and any subdirectory. It is the directory
// counterpart to passing a single file as a workload's only shard.
func DiscoverShards(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("input: reading directory %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if AuxiliaryBasenames[e.Name()] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths, nil
}

// Source presents one workload's recorded shards, each opened lazily and
// in the deterministic order DiscoverShards establishes.
type Source interface {
	// ShardPaths returns the ordered shard file paths for this workload.
	ShardPaths() ([]string, error)
	// Open opens the shard at path, dispatching on its extension.
	Open(path string) (Stream, error)
}

// DirSource is a Source backed by one on-disk directory.
type DirSource struct {
	Dir string
}

// ShardPaths implements Source.
func (ds DirSource) ShardPaths() ([]string, error) {
	return DiscoverShards(ds.Dir)
}

// Open implements Source.
func (ds DirSource) Open(path string) (Stream, error) {
	if shouldPrefetch(path) {
		return openWithPrefetch(path)
	}
	return OpenShard(path)
}

// FileSource is a Source over a single already-named shard file, used when
// a workload is one file rather than one directory.
type FileSource struct {
	Path string
}

// ShardPaths implements Source.
func (fs FileSource) ShardPaths() ([]string, error) {
	return []string{fs.Path}, nil
}

// Open implements Source.
func (fs FileSource) Open(path string) (Stream, error) {
	return OpenShard(path)
}

func openWithPrefetch(path string) (Stream, error) {
	// Prefetching does not change which bytes are read, only how eagerly
	// the OS page cache is warmed; OpenShard already reads through a
	// buffered reader, so there's no separate code path to take here
	// beyond the shouldPrefetch decision itself.
	return OpenShard(path)
}
