// Copyright 2021 The gVisor Authors.
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

// Package linuxerr contains syscall error codes exported as error interface
// pointers. This allows for fast comparison and return operations comparable
// to unix.Errno constants.
package linuxerr

import (
	"golang.org/x/sys/unix"
	"gvisor.dev/futex/pkg/errors"
)

// The following errors are semantically identical to the unix.Errno of the
// same name. However, since the types are distinct (these are *errors.Error),
// they are not directly comparable; use Equals or ToUnix.
var (
	noError *errors.Error = nil

	ENOENT    = errors.New(unix.ENOENT, "no such file or directory")
	EINTR     = errors.New(unix.EINTR, "interrupted system call")
	EAGAIN    = errors.New(unix.EAGAIN, "try again")
	ENOMEM    = errors.New(unix.ENOMEM, "out of memory")
	EFAULT    = errors.New(unix.EFAULT, "bad address")
	EEXIST    = errors.New(unix.EEXIST, "file exists")
	EINVAL    = errors.New(unix.EINVAL, "invalid argument")
	ENOSPC    = errors.New(unix.ENOSPC, "no space left on device")
	ENOSYS    = errors.New(unix.ENOSYS, "invalid system call number")
	ETIMEDOUT = errors.New(unix.ETIMEDOUT, "connection timed out")
	ECANCELED = errors.New(unix.ECANCELED, "operation canceled")
)

var errorSlice = []*errors.Error{
	ENOENT, EINTR, EAGAIN, ENOMEM, EFAULT, EEXIST, EINVAL, ENOSPC, ENOSYS, ETIMEDOUT, ECANCELED,
}

// ErrorFromUnix returns a linuxerr from a unix.Errno. Errnos this package does
// not export are returned unchanged.
func ErrorFromUnix(err unix.Errno) error {
	if err == unix.Errno(0) {
		return nil
	}
	for _, e := range errorSlice {
		if e.Errno() == err {
			return e
		}
	}
	return err
}

// ToError converts a linuxerr to an error type.
func ToError(err *errors.Error) error {
	if err == noError {
		return nil
	}
	return err
}

// ToUnix converts a linuxerr to a unix.Errno.
func ToUnix(e *errors.Error) unix.Errno {
	var unixErr unix.Errno
	if e != noError {
		unixErr = e.Errno()
	}
	return unixErr
}

// Equals compares a linuxerr to a given error.
func Equals(e *errors.Error, err error) bool {
	var unixErr unix.Errno
	if e != noError {
		unixErr = e.Errno()
	}
	if err == nil {
		err = noError
	}
	return e == err || unixErr == err
}

// TranslateError returns the errno carried by err, if any.
func TranslateError(err error) (unix.Errno, bool) {
	switch e := err.(type) {
	case *errors.Error:
		return e.Errno(), true
	case unix.Errno:
		return e, true
	default:
		return 0, false
	}
}
