// Copyright 2020 The gVisor Authors.
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

package refs

import (
	"fmt"

	"gvisor.dev/futex/pkg/log"
	"gvisor.dev/futex/pkg/sync"
)

var (
	// liveObjects is a global map of reference-counted objects. Objects are
	// inserted when leak check is enabled, and they are removed when they are
	// destroyed. It is protected by liveObjectsMu.
	liveObjects   map[CheckedObject]struct{}
	liveObjectsMu sync.Mutex
)

// CheckedObject represents a reference-counted object with an informative
// leak detection message.
type CheckedObject interface {
	// RefType is the type of the reference-counted object.
	RefType() string

	// LeakMessage supplies a warning to be printed upon leak detection.
	LeakMessage() string

	// LogRefs indicates whether reference-related events should be logged.
	LogRefs() bool
}

func init() {
	liveObjects = make(map[CheckedObject]struct{})
}

// LeakCheckEnabled returns whether leak checking is enabled. The following
// functions should only be called if it returns true.
func LeakCheckEnabled() bool {
	return GetLeakMode() != NoLeakChecking
}

// Register adds obj to the live object map.
func Register(obj CheckedObject) {
	if LeakCheckEnabled() {
		liveObjectsMu.Lock()
		if _, ok := liveObjects[obj]; ok {
			liveObjectsMu.Unlock()
			panic(fmt.Sprintf("Unexpected entry in leak checking map: reference %p already added", obj))
		}
		liveObjects[obj] = struct{}{}
		liveObjectsMu.Unlock()
		if obj.LogRefs() {
			log.Infof("[%s %p] registered", obj.RefType(), obj)
		}
	}
}

// Unregister removes obj from the live object map.
//
// An object registered before leak checking was enabled is not in the map,
// and is silently ignored.
func Unregister(obj CheckedObject) {
	if LeakCheckEnabled() {
		liveObjectsMu.Lock()
		delete(liveObjects, obj)
		liveObjectsMu.Unlock()
		if obj.LogRefs() {
			log.Infof("[%s %p] unregistered", obj.RefType(), obj)
		}
	}
}

// LiveObjects returns the number of objects currently tracked.
func LiveObjects() int {
	liveObjectsMu.Lock()
	defer liveObjectsMu.Unlock()
	return len(liveObjects)
}

// checkOnce makes sure that leak checking is only done once. DoLeakCheck is
// called from multiple places (which may overlap) to cover different exit
// paths.
var checkOnce sync.Once

// DoLeakCheck iterates through the live object map and logs a message for each
// object. It should be called when no reference-counted objects are reachable
// anymore, at which point anything left in the map is considered a leak. On
// multiple calls, only the first call will perform the leak check.
func DoLeakCheck() {
	if LeakCheckEnabled() {
		checkOnce.Do(func() { doLeakCheck() })
	}
}

// DoRepeatedLeakCheck is the same as DoLeakCheck except that it can be called
// multiple times by the caller to incrementally perform leak checking. It
// returns the number of leaked objects found.
func DoRepeatedLeakCheck() int {
	if LeakCheckEnabled() {
		return doLeakCheck()
	}
	return 0
}

func doLeakCheck() int {
	liveObjectsMu.Lock()
	leaked := len(liveObjects)
	if leaked == 0 {
		liveObjectsMu.Unlock()
		return 0
	}
	msg := fmt.Sprintf("Leak checking detected %d leaked objects:\n", leaked)
	for obj := range liveObjects {
		msg += obj.LeakMessage() + "\n"
	}
	liveObjectsMu.Unlock()
	if GetLeakMode() == LeaksPanic {
		panic(msg)
	}
	log.Warningf(msg)
	return leaked
}
