package storage

import (
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/menta2k/object-locator/internal/utils"
)

// Layout is the fixed directory structure relative to a project root
type Layout struct {
	Root       string
	Data       string
	DataTest   string
	DataModels string
}

// NewLayout resolves the layout under root, creates the data directories if
// they are missing and checks that each of them is a directory.
func NewLayout(root string) (*Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve project root %q", root)
	}

	l := &Layout{
		Root:       abs,
		Data:       filepath.Join(abs, "data"),
		DataTest:   filepath.Join(abs, "data", "test"),
		DataModels: filepath.Join(abs, "data", "models"),
	}

	for _, dir := range []string{l.Data, l.DataTest, l.DataModels} {
		if err := utils.EnsureDir(dir); err != nil {
			return nil, errors.Wrapf(err, "create %s", dir)
		}
	}
	for _, dir := range []string{l.Root, l.Data, l.DataTest, l.DataModels} {
		if !utils.DirExists(dir) {
			return nil, errors.Errorf("%s is not a directory", dir)
		}
	}
	return l, nil
}

// TestImages lists the source images for a run, sorted by path
func (l *Layout) TestImages() ([]string, error) {
	files, err := utils.ListImageFiles(l.DataTest)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", l.DataTest)
	}
	return files, nil
}

// ModelFile returns the path a weights file called name would have under data/models
func (l *Layout) ModelFile(name string) string {
	return filepath.Join(l.DataModels, name)
}
