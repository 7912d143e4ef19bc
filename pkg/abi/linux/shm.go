// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package linux

// IPC_PRIVATE is the key that always creates a new segment, from
// <linux/ipc.h>.
const IPC_PRIVATE = 0

// Shared memory limits, from <uapi/linux/shm.h>.
const (
	SHMMIN = 1
	SHMMNI = 4096
	SHMMAX = 1 << 30
	SHMALL = 1 << 21 // In pages.
)
