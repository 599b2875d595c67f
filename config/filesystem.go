package config

import (
	"io/fs"
	"os"
)

// fileSystem is replaced by an fstest.MapFS in tests.
var fileSystem fs.FS = osFS{}

type osFS struct{}

// Open implements fs.FS. Paths are handed to the OS untouched, so absolute
// paths work.
func (o osFS) Open(name string) (fs.File, error) {
	return os.Open(name)
}
