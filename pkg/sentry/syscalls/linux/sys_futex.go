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

// Package linux provides the futex(2) system call entry point.
package linux

import (
	"gvisor.dev/futex/pkg/abi/linux"
	"gvisor.dev/futex/pkg/errors/linuxerr"
	"gvisor.dev/futex/pkg/hostarch"
	"gvisor.dev/futex/pkg/log"
	"gvisor.dev/futex/pkg/metric"
	"gvisor.dev/futex/pkg/sentry/kernel"
	"gvisor.dev/futex/pkg/sentry/ktime"
)

var unsupportedOps = metric.MustCreateNewUint64Metric(
	"futex_unsupported_ops_total",
	"Number of futex calls with an operation that is not implemented.")

// FutexArgs are the arguments of futex(2), after copy-in.
type FutexArgs struct {
	// Addr is uaddr.
	Addr hostarch.Addr

	// Op is futex_op, including the modifier flags.
	Op int

	// Val is the expected value for waits, and the number of waiters to
	// wake for wakes.
	Val uint32

	// Timeout is the timeout of FUTEX_WAIT (relative) and FUTEX_WAIT_BITSET
	// (absolute). Nil means no timeout.
	Timeout *linux.Timespec

	// Val2 is the number of waiters to requeue for FUTEX_REQUEUE and
	// FUTEX_CMP_REQUEUE, and the number of waiters to wake on Addr2 for
	// FUTEX_WAKE_OP.
	Val2 uint32

	// Addr2 is uaddr2.
	Addr2 hostarch.Addr

	// Val3 is the bitset for FUTEX_WAIT_BITSET and FUTEX_WAKE_BITSET, the
	// expected value for FUTEX_CMP_REQUEUE, and the encoded operation for
	// FUTEX_WAKE_OP.
	Val3 uint32
}

// futexWaitDeadline returns the deadline for a wait with the given timeout.
func futexWaitDeadline(t *kernel.Task, ts *linux.Timespec, absolute bool) (ktime.Time, error) {
	if ts == nil {
		return ktime.MaxTime, nil
	}
	if !ts.Valid() {
		return ktime.Time{}, linuxerr.EINVAL
	}
	if absolute {
		return ktime.FromTimespec(*ts), nil
	}
	// Just like linux, we cap the timeout with the max number that int64 can
	// represent which is roughly 292 years.
	return t.Kernel().Clock().Now().Add(ts.ToDuration()), nil
}

// Futex implements linux syscall futex(2).
func Futex(t *kernel.Task, args FutexArgs) (uintptr, error) {
	addr := args.Addr
	cmd := args.Op & linux.FUTEX_CMD_MASK
	private := args.Op&linux.FUTEX_PRIVATE_FLAG != 0
	clockRealtime := args.Op&linux.FUTEX_CLOCK_REALTIME == linux.FUTEX_CLOCK_REALTIME

	if clockRealtime && cmd != linux.FUTEX_WAIT_BITSET {
		return 0, linuxerr.ENOSYS
	}

	switch cmd {
	case linux.FUTEX_WAIT, linux.FUTEX_WAIT_BITSET:
		// WAIT{_BITSET} wait forever if the timeout isn't passed.
		bitmask := uint32(linux.FUTEX_BITSET_MATCH_ANY)
		if cmd == linux.FUTEX_WAIT_BITSET {
			bitmask = args.Val3
			if bitmask == 0 {
				return 0, linuxerr.EINVAL
			}
		}
		deadline, err := futexWaitDeadline(t, args.Timeout, cmd == linux.FUTEX_WAIT_BITSET)
		if err != nil {
			return 0, err
		}
		return 0, t.Futex().Wait(t, t, addr, private, args.Val, bitmask, deadline)

	case linux.FUTEX_WAKE, linux.FUTEX_WAKE_BITSET:
		bitmask := uint32(linux.FUTEX_BITSET_MATCH_ANY)
		if cmd == linux.FUTEX_WAKE_BITSET {
			bitmask = args.Val3
			if bitmask == 0 {
				return 0, linuxerr.EINVAL
			}
		}
		n := int(int32(args.Val))
		if n <= 0 {
			// The Linux kernel wakes one waiter even if val is
			// non-positive.
			n = 1
		}
		woken, err := t.Futex().Wake(t, addr, private, bitmask, n)
		return uintptr(woken), err

	case linux.FUTEX_REQUEUE, linux.FUTEX_CMP_REQUEUE:
		nwake, nreq := int(int32(args.Val)), int(int32(args.Val2))
		if nwake < 0 || nreq < 0 {
			return 0, linuxerr.EINVAL
		}
		var (
			n   int
			err error
		)
		if cmd == linux.FUTEX_REQUEUE {
			n, err = t.Futex().Requeue(t, addr, args.Addr2, private, nwake, nreq)
		} else {
			n, err = t.Futex().CmpRequeue(t, addr, args.Addr2, private, args.Val3, nwake, nreq)
		}
		return uintptr(n), err

	case linux.FUTEX_WAKE_OP:
		n, err := t.Futex().WakeOp(t, addr, args.Addr2, private, int(int32(args.Val)), int(int32(args.Val2)), args.Val3)
		return uintptr(n), err

	default:
		// PI futexes, FUTEX_FD and anything newer.
		unsupportedOps.Increment()
		log.Debugf("futex: unsupported op %d", cmd)
		return 0, linuxerr.ENOSYS
	}
}
