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

//go:build linux

package input

import (
	"path/filepath"

	log "github.com/golang/glog"
	"golang.org/x/sys/unix"
)

// Magic numbers for network filesystems worth prefetching sequentially
// rather than relying on the kernel's default readahead, taken from
// linux/magic.h.
const (
	nfsSuperMagic   = 0x6969
	cifsSuperMagic  = 0xFF534D42
	smbSuperMagic   = 0x517B
	fuseSuperMagic  = 0x65735546
)

// shouldPrefetch reports whether path sits on a filesystem where warming
// the page cache ahead of the scheduler's own read pattern is likely to pay
// for itself, checked via statfs(2).
func shouldPrefetch(path string) bool {
	var st unix.Statfs_t
	if err := unix.Statfs(filepath.Dir(path), &st); err != nil {
		log.V(2).Infof("input: statfs(%s) failed, assuming local disk: %v", path, err)
		return false
	}
	switch int64(st.Type) {
	case nfsSuperMagic, cifsSuperMagic, smbSuperMagic, fuseSuperMagic:
		return true
	default:
		return false
	}
}
