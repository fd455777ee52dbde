package abf

import (
	"errors"
	"fmt"
)

// FormatError reports a file whose magic bytes or header contents do not
// match the ABF layout.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: not a valid ABF file: %s", e.Path, e.Reason)
}

// TruncatedFileError reports a declared section that extends past the end
// of the file.
type TruncatedFileError struct {
	Path    string
	Section string
	Need    int64 // byte offset the section ends at
	Have    int64 // actual file length
}

func (e *TruncatedFileError) Error() string {
	return fmt.Sprintf("%s: truncated file: %s section needs %d bytes, file has %d",
		e.Path, e.Section, e.Need, e.Have)
}

// UnsupportedVersionError reports a format version outside the supported
// range of its variant.
type UnsupportedVersionError struct {
	Path    string
	Version Version
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("%s: unsupported ABF version %s", e.Path, e.Version)
}

// IsFormatError reports whether err is or wraps a *FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// IsTruncated reports whether err is or wraps a *TruncatedFileError.
func IsTruncated(err error) bool {
	var te *TruncatedFileError
	return errors.As(err, &te)
}

// IsUnsupportedVersion reports whether err is or wraps an *UnsupportedVersionError.
func IsUnsupportedVersion(err error) bool {
	var ue *UnsupportedVersionError
	return errors.As(err, &ue)
}
