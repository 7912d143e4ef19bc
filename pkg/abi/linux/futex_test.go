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

import (
	"math"
	"testing"
)

func TestFutexOpRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name                   string
		op, oparg, cmp, cmparg uint32
		wantOparg              uint32
	}{
		{name: "set", op: FUTEX_OP_SET, oparg: 7, cmp: FUTEX_OP_CMP_EQ, cmparg: 1, wantOparg: 7},
		{name: "add max args", op: FUTEX_OP_ADD, oparg: 0xfff, cmp: FUTEX_OP_CMP_GE, cmparg: 0xfff, wantOparg: 0xfff},
		{name: "shifted or", op: FUTEX_OP_OR | FUTEX_OP_OPARG_SHIFT, oparg: 4, cmp: FUTEX_OP_CMP_NE, cmparg: 0, wantOparg: 16},
	} {
		t.Run(tc.name, func(t *testing.T) {
			op, oparg, cmp, cmparg := DecodeFutexOp(FutexOp(tc.op, tc.oparg, tc.cmp, tc.cmparg))
			if op != tc.op&^FUTEX_OP_OPARG_SHIFT || oparg != tc.wantOparg || cmp != tc.cmp || cmparg != tc.cmparg {
				t.Errorf("DecodeFutexOp(FutexOp(%d, %d, %d, %d)) = (%d, %d, %d, %d), want (%d, %d, %d, %d)",
					tc.op, tc.oparg, tc.cmp, tc.cmparg, op, oparg, cmp, cmparg,
					tc.op&^FUTEX_OP_OPARG_SHIFT, tc.wantOparg, tc.cmp, tc.cmparg)
			}
		})
	}
}

func TestTimespec(t *testing.T) {
	if got := (Timespec{Sec: math.MaxInt64}).ToNsecCapped(); got != math.MaxInt64 {
		t.Errorf("ToNsecCapped of huge timespec = %d, want %d", got, int64(math.MaxInt64))
	}
	if got := (Timespec{Sec: 1, Nsec: 5}).ToNsecCapped(); got != 1e9+5 {
		t.Errorf("ToNsecCapped = %d, want %d", got, int64(1e9+5))
	}
	for _, ts := range []Timespec{{Sec: -1}, {Nsec: -1}, {Nsec: 1e9}} {
		if ts.Valid() {
			t.Errorf("%+v.Valid() = true, want false", ts)
		}
	}
}
