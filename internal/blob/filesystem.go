package blob

import (
	"plantgrid/internal/infra/blob/fs"
)

// NewFilesystem returns a Store rooted at dir.
func NewFilesystem(dir string) (Store, error) {
	return fs.New(dir)
}
