package importer

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// spaceHeadroom is the multiple of the file size that must be free on
// the library volume before an import starts.
const spaceHeadroom = 1.10

// freeSpace reports the bytes available to unprivileged users on the
// volume holding path.
func freeSpace(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return st.Bavail * uint64(st.Bsize), nil
}
