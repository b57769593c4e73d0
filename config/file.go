// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"fmt"
	"io/fs"
)

// FileOpenError is returned by FileReader when its file cannot be opened.
type FileOpenError struct {
	Name  string
	Cause error
}

// Error implements the [builtin.error] interface.
func (e FileOpenError) Error() string {
	return fmt.Sprintf("failed to open config file %s: %s", e.Name, e.Cause)
}

// Unwrap implements the interface used by errors.Is and errors.As.
func (e FileOpenError) Unwrap() error {
	return e.Cause
}

// FileReader reads a single file from a fs.FS. The file is only opened on
// the first Read so a Source can be declared for a file which may not exist.
//
// A FileReader is not safe for concurrent use.
type FileReader struct {
	fsys fs.FS
	name string

	file    fs.File
	openErr error
}

// NewFileReader returns a FileReader for the file name in fsys.
func NewFileReader(fsys fs.FS, name string) *FileReader {
	return &FileReader{
		fsys: fsys,
		name: name,
	}
}

// Read implements the io.Reader interface.
func (r *FileReader) Read(b []byte) (int, error) {
	if r.file == nil && r.openErr == nil {
		r.file, r.openErr = r.fsys.Open(r.name)
		if r.openErr != nil {
			r.openErr = FileOpenError{Name: r.name, Cause: r.openErr}
		}
	}
	if r.openErr != nil {
		return 0, r.openErr
	}
	return r.file.Read(b)
}

// Close implements the io.Closer interface. It is a no-op when the file
// was never opened.
func (r *FileReader) Close() error {
	if r.file == nil {
		return nil
	}
	f := r.file
	r.file = nil
	return f.Close()
}
