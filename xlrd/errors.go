package xlrd

import (
	errors "gopkg.in/src-d/go-errors.v1"
)

var (
	// ErrEmptyInput is returned when the input is too small to hold any
	// workbook at all.
	ErrEmptyInput = errors.NewKind("input is empty or too small: %d bytes")

	// ErrFormat is returned for input that is not a legacy workbook: missing
	// magic, impossible header geometry, or a different file format.
	ErrFormat = errors.NewKind("unsupported format: %s")

	// ErrCorrupt is returned when the container or the record stream is
	// internally inconsistent.
	ErrCorrupt = errors.NewKind("corrupt workbook: %s")

	// ErrUnsupportedSchema is returned for BOF records that name an unknown
	// BIFF generation, or when a container holds no workbook stream.
	ErrUnsupportedSchema = errors.NewKind("unsupported workbook schema: %s")

	// ErrEncrypted is returned when a FILEPASS record is present.
	ErrEncrypted = errors.NewKind("workbook is encrypted")

	// ErrStringTable reports a shared string table whose declared size does
	// not match its content. It is logged, never returned from OpenWorkbook.
	ErrStringTable = errors.NewKind("shared string table: declared %d strings, decoded %d")

	// ErrReleased is returned by sheet loading after ReleaseResources.
	ErrReleased = errors.NewKind("workbook resources already released")

	// ErrNameNotReference is returned by Name.Cell and Name.Area2D for a
	// name that is not a constant absolute reference to one area.
	ErrNameNotReference = errors.NewKind("name %q %s")

	ErrSheetNotFound = errors.NewKind("no sheet named <%s>")
	ErrSheetIndex    = errors.NewKind("sheet index %d out of range")
	ErrInvalidKey    = errors.NewKind("invalid key type for sheet access: %T")
	ErrCellIndex     = errors.NewKind("cell (%d, %d) is outside sheet %q")
)

// IsDateRangeError reports whether err belongs to the date conversion
// family (negative, ambiguous, too large, bad datemode or bad tuple).
func IsDateRangeError(err error) bool {
	return errors.Any(err,
		ErrXLDateNegative,
		ErrXLDateAmbiguous,
		ErrXLDateTooLarge,
		ErrXLDateBadDatemode,
		ErrXLDateBadTuple,
	)
}
