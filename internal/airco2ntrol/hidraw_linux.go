package airco2ntrol

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// hidiocsfeature9 is HIDIOCSFEATURE(9): _IOC(_IOC_WRITE|_IOC_READ, 'H', 0x06, 9).
const hidiocsfeature9 = 0xc0094806

// setFeature sends report 0 followed by key.
func setFeature(f *os.File, key Key) error {
	var report [9]byte
	copy(report[1:], key[:])

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), uintptr(hidiocsfeature9), uintptr(unsafe.Pointer(&report[0])))
	if errno != 0 {
		return errno
	}
	return nil
}
