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

package refs

import (
	"strings"
	"testing"
)

func withLeakMode(t *testing.T, mode LeakMode) {
	old := GetLeakMode()
	SetLeakMode(mode)
	t.Cleanup(func() { SetLeakMode(old) })
}

func TestRefsDestructor(t *testing.T) {
	withLeakMode(t, LeaksPanic)

	var r Refs
	r.InitRefs("test.Object")
	r.IncRef()
	destroyed := 0
	r.DecRef(func() { destroyed++ })
	if destroyed != 0 {
		t.Fatalf("destructor ran with %d references left", r.ReadRefs())
	}
	r.DecRef(func() { destroyed++ })
	if destroyed != 1 {
		t.Fatalf("destructor ran %d times, want 1", destroyed)
	}
	if n := DoRepeatedLeakCheck(); n != 0 {
		t.Errorf("DoRepeatedLeakCheck() = %d, want 0", n)
	}
}

func TestDecRefBelowZeroPanics(t *testing.T) {
	var r Refs
	r.InitRefs("test.Object")
	r.DecRef(nil)
	defer func() {
		if recover() == nil {
			t.Errorf("DecRef on a dead object did not panic")
		}
	}()
	r.DecRef(nil)
}

func TestLeakCheckPanics(t *testing.T) {
	withLeakMode(t, LeaksPanic)

	var r Refs
	r.InitRefs("test.Leaky")
	defer r.DecRef(nil)

	defer func() {
		msg, _ := recover().(string)
		if !strings.Contains(msg, "test.Leaky") {
			t.Errorf("leak check panic = %q, want it to name the leaked object", msg)
		}
	}()
	DoRepeatedLeakCheck()
}

func TestLeakModeFlag(t *testing.T) {
	for _, s := range []string{"disabled", "log-names", "panic"} {
		var m LeakMode
		if err := m.Set(s); err != nil {
			t.Fatalf("Set(%q) failed: %v", s, err)
		}
		if m.String() != s {
			t.Errorf("Set(%q).String() = %q", s, m.String())
		}
	}
	var m LeakMode
	if err := m.Set("bogus"); err == nil {
		t.Errorf("Set(bogus) succeeded")
	}
}

func TestTryIncRef(t *testing.T) {
	var r Refs
	r.InitRefs("test.Object")
	if !r.TryIncRef() {
		t.Fatalf("TryIncRef on a live object failed")
	}
	r.DecRef(nil)
	r.DecRef(nil)
	if r.TryIncRef() {
		t.Errorf("TryIncRef on a dead object succeeded")
	}
}
