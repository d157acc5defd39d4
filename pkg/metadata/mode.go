package metadata

import "strings"

// Mode is the derived acquisition mode.
type Mode string

const (
	ModeSingle       Mode = "single-scan"
	ModeStitched     Mode = "stitched-scan"
	ModeWide         Mode = "wide-scan"
	ModeWideStitched Mode = "wide-stitched-scan"
	ModeUnknown      Mode = "unknown"
)

// Raw acquisition codes as stored in ImageInfo/AcquisitionMode.
const (
	CodeTomography     int64 = 2
	CodeTomographyStd  int64 = 10
	CodeTomographyWide int64 = 17
)

// wideModeString is the AcqModeString value TXRM and RCP files use for wide
// field acquisitions.
const wideModeString = "Tomography Wide"

type modeKey struct {
	stitched bool
	code     int64
}

// modeTable is the complete mapping; anything else is ModeUnknown.
var modeTable = map[modeKey]Mode{
	{false, CodeTomography}:     ModeSingle,
	{true, CodeTomography}:      ModeStitched,
	{false, CodeTomographyStd}:  ModeSingle,
	{true, CodeTomographyStd}:   ModeStitched,
	{false, CodeTomographyWide}: ModeWide,
	{true, CodeTomographyWide}:  ModeWideStitched,
}

// DeriveMode maps a stitching indicator and raw acquisition code to a Mode.
func DeriveMode(stitched bool, code int64) Mode {
	if m, ok := modeTable[modeKey{stitched, code}]; ok {
		return m
	}
	return ModeUnknown
}

// Stitched reports whether the mode combines several segments.
func (m Mode) Stitched() bool {
	return m == ModeStitched || m == ModeWideStitched
}

// Label returns the wording used by the acquisition software.
func (m Mode) Label() string {
	switch m {
	case ModeSingle:
		return "Normal"
	case ModeStitched:
		return "Stitch"
	case ModeWide:
		return "Wide"
	case ModeWideStitched:
		return "Wide Stitch"
	}
	return "Unknown"
}

// codeFromModeString normalises the textual mode of TXRM/RCP files onto the
// numeric codes used by TXM files.
func codeFromModeString(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return 0, false
	case s == wideModeString:
		return CodeTomographyWide, true
	default:
		return CodeTomographyStd, true
	}
}

// deriveAcquisitionCode turns the raw AcqModeString field into a code.
func deriveAcquisitionCode(ctx Context) (Value, bool) {
	s, ok := ctx.Str(fieldModeString)
	if !ok {
		return Value{}, false
	}
	code, ok := codeFromModeString(s)
	if !ok {
		return Value{}, false
	}
	return IntValue(Int32, code), true
}

// deriveAcquisitionMode combines the stitching flag and the raw code. A
// missing flag counts as not stitched; a missing code yields ModeUnknown.
func deriveAcquisitionMode(ctx Context) (Value, bool) {
	stitched, _ := ctx.Bool(FieldStitched)
	code, ok := ctx.Int(FieldAcquisitionCode)
	if !ok {
		return StringValue(string(ModeUnknown)), true
	}
	return StringValue(string(DeriveMode(stitched, code))), true
}
