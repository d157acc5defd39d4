package metadata

import "fmt"

// Field names shared by the schema tables.
const (
	FieldDate             = "date"
	FieldTime             = "time"
	FieldRecipeName       = "recipe"
	FieldRecipeCount      = "recipe_count"
	FieldVoltage          = "voltage"
	FieldCurrent          = "current"
	FieldPower            = "power"
	FieldProjections      = "projections"
	FieldRotation         = "rotation"
	FieldExposure         = "exposure"
	FieldObjective        = "objective"
	FieldFilter           = "filter"
	FieldVoxelSize        = "voxel_size"
	FieldConeAngle        = "cone_angle"
	FieldBinning          = "binning"
	FieldFrameAveraging   = "frame_averaging"
	FieldBeamHardening    = "beam_hardening"
	FieldSourceDistance   = "source_distance"
	FieldDetectorDistance = "detector_distance"
	FieldXPosition        = "x_position"
	FieldYPosition        = "y_position"
	FieldZPosition        = "z_position"
	FieldImageWidth       = "image_width"
	FieldImageHeight      = "image_height"
	FieldDataType         = "data_type"
	FieldImagesTaken      = "images_taken"
	FieldAcquisitionCode  = "acquisition_code"
	FieldStitched         = "stitched"
	FieldAcquisitionMode  = "acquisition_mode"
	FieldSegments         = "segments"
	FieldHART             = "hart"
	FieldVariableExposure = "variable_exposure"

	fieldTimestamp        = "timestamp_raw"
	fieldObjectiveName    = "objective_raw"
	fieldModeString       = "acquisition_mode_raw"
	fieldSourceRaw        = "source_distance_raw"
	fieldDetectorRaw      = "detector_distance_raw"
	fieldStartAngle       = "start_angle"
	fieldEndAngle         = "end_angle"
	fieldVariableAngle    = "variable_angle_mode"
	fieldVariableExpMode  = "variable_exposure_mode"
	fieldInitialPositions = "initial_positions"
	fieldCCDPixelSize     = "ccd_pixel_size"
)

// Stream paths used by more than one schema.
const (
	pathStitchEnabled  = "ReconSettings/StitchParams/AutoStitchSettings/Enabled"
	pathStitchSegments = "ReconSettings/StitchParams/AutoStitchSettings/NumSegments"
	pathImageWidth     = "ImageInfo/ImageWidth"
	pathImageHeight    = "ImageInfo/ImageHeight"
	pathDataType       = "ImageInfo/DataType"
)

// stream declares a single-element stream field.
func stream(name, label, unit string, t Type, paths ...string) FieldSpec {
	return FieldSpec{
		Name:      name,
		Label:     label,
		Unit:      unit,
		Type:      t,
		Count:     1,
		Paths:     paths,
		Precision: -1,
	}
}

// text declares a variable-length string field.
func text(name, label string, paths ...string) FieldSpec {
	s := stream(name, label, "", String, paths...)
	s.Count = 0
	return s
}

// derived declares a field computed from earlier ones.
func derived(name, label, unit string, fn DeriveFunc) FieldSpec {
	return FieldSpec{Name: name, Label: label, Unit: unit, Derive: fn, Precision: -1}
}

func (s FieldSpec) at(offset int) FieldSpec    { s.Offset = offset; return s }
func (s FieldSpec) n(count int) FieldSpec      { s.Count = count; return s }
func (s FieldSpec) prec(p int) FieldSpec       { s.Precision = p; return s }
func (s FieldSpec) when(p Predicate) FieldSpec { s.When = p; return s }
func (s FieldSpec) internal() FieldSpec        { s.Internal = true; return s }
func (s FieldSpec) shared() FieldSpec          { s.Shared = true; return s }

var schemas = map[Kind]*Schema{
	KindTXM:  txmSchema(),
	KindTXRM: txrmSchema(),
	KindRCP:  rcpSchema(),
	KindXRM:  xrmSchema(),
}

// SchemaFor returns the schema table for kind. Schemas are shared and must
// not be modified.
func SchemaFor(kind Kind) (*Schema, error) {
	s, ok := schemas[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownKind, kind)
	}
	return s, nil
}

// imageInfoDate covers the "MM/DD/YYYY HH:MM:SS" ImageInfo/Date stream.
func imageInfoDate() []FieldSpec {
	return []FieldSpec{
		text(fieldTimestamp, "Timestamp", "ImageInfo/Date").internal(),
		derived(FieldDate, "Date", "", dateFrom(fieldTimestamp, "01/02/2006")),
		derived(FieldTime, "Time", "", timeFrom(fieldTimestamp, 11, "15:04:05")),
	}
}

func sourceFields() []FieldSpec {
	return []FieldSpec{
		stream(FieldVoltage, "kV", "kV", Float32, "ImageInfo/Voltage"),
		stream(FieldCurrent, "uA", "uA", Float32, "ImageInfo/Current"),
		derived(FieldPower, "Power", "W", product(FieldVoltage, FieldCurrent, 1e-3)).prec(1),
	}
}

func opticsFields() []FieldSpec {
	return []FieldSpec{
		text(fieldObjectiveName, "Objective name", "ImageInfo/ObjectiveName").internal(),
		derived(FieldObjective, "Objective lens", "", objective(fieldObjectiveName)),
	}
}

func cameraFields() []FieldSpec {
	return []FieldSpec{
		stream(FieldVoxelSize, "Voxel size", "um", Float32, "ImageInfo/PixelSize").prec(2),
		stream(FieldConeAngle, "Cone angle", "deg", Float32, "ImageInfo/ConeAngle").prec(2),
		stream(FieldBinning, "Binning", "", Int32, "ImageInfo/CameraBinning"),
		stream(FieldFrameAveraging, "Frame averaging", "", Int32, "ImageInfo/CameraNumberOfFramesPerImage"),
	}
}

func positionFields() []FieldSpec {
	return []FieldSpec{
		stream(FieldXPosition, "X position", "um", Float32, "ImageInfo/XPosition").prec(2),
		stream(FieldYPosition, "Y position", "um", Float32, "ImageInfo/YPosition").prec(2),
		stream(FieldZPosition, "Z position", "um", Float32, "ImageInfo/ZPosition").prec(2),
	}
}

func geometryFields() []FieldSpec {
	return []FieldSpec{
		stream(FieldImageWidth, "Image width", "px", Uint32, pathImageWidth),
		stream(FieldImageHeight, "Image height", "px", Uint32, pathImageHeight),
		stream(FieldDataType, "Data type", "", Uint32, pathDataType),
		stream(FieldImagesTaken, "Images taken", "", Uint32, "ImageInfo/ImagesTaken"),
	}
}

// modeFields derives the acquisition mode. The raw code field must already
// be declared; segments are only read for stitched modes.
func modeFields(enabledPath, segmentsPath string) []FieldSpec {
	return []FieldSpec{
		stream(FieldStitched, "Stitching enabled", "", Bool, enabledPath).internal(),
		derived(FieldAcquisitionMode, "Acquisition mode", "", deriveAcquisitionMode),
		stream(FieldSegments, "No. of segments", "", Int32, segmentsPath).when(Stitched),
	}
}

func concat(groups ...[]FieldSpec) []FieldSpec {
	var out []FieldSpec
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func txmSchema() *Schema {
	return &Schema{Kind: KindTXM, Fields: concat(
		imageInfoDate(),
		sourceFields(),
		[]FieldSpec{
			stream(FieldProjections, "Projections taken", "", Int32, "AutoRecon/NumOfProjects", "ImageInfo/ImagesTaken"),
			stream(FieldRotation, "Rotation", "deg", Float32, "AutoRecon/AngleSpan").prec(0),
			stream(FieldExposure, "Exposure", "s", Float32, "ImageInfo/ExpTimes", "Imageinfo/ExpTimes").at(4).prec(2),
		},
		opticsFields(),
		[]FieldSpec{
			text(FieldFilter, "Filter", "ImageInfo/SourceFilterName"),
		},
		cameraFields(),
		[]FieldSpec{
			stream(FieldBeamHardening, "Beam hardening", "", Float32, "ReconSettings/BeamHardening").prec(2),
			stream(fieldSourceRaw, "Source distance", "um", Float32, "ImageInfo/StoRADistance").internal(),
			stream(fieldDetectorRaw, "Detector distance", "um", Float32, "ImageInfo/DtoRADistance").internal(),
			derived(FieldSourceDistance, "Src-Obj distance", "mm", element(fieldSourceRaw, 0, 1e-3, false)).prec(2),
			derived(FieldDetectorDistance, "Det-Obj distance", "mm", element(fieldDetectorRaw, 0, 1e-3, false)).prec(2),
		},
		positionFields(),
		geometryFields(),
		[]FieldSpec{
			stream(FieldAcquisitionCode, "Acquisition code", "", Int32, "ImageInfo/AcquisitionMode").internal(),
		},
		modeFields(pathStitchEnabled, pathStitchSegments),
	)}
}

func txrmSchema() *Schema {
	return &Schema{Kind: KindTXRM, Fields: concat(
		imageInfoDate(),
		sourceFields(),
		[]FieldSpec{
			stream(FieldProjections, "Projections taken", "", Int32, "ImageInfo/ImagesTaken"),
			stream(fieldEndAngle, "End angle", "deg", Float32, "AcquisitionSettings/EndAngle").internal(),
			stream(fieldStartAngle, "Start angle", "deg", Float32, "AcquisitionSettings/StartAngle").internal(),
			derived(FieldRotation, "Rotation", "deg", absSum(fieldEndAngle, fieldStartAngle)).prec(0),
			stream(FieldExposure, "Exposure", "s", Float32, "AcquisitionSettings/ExpTime").prec(2),
		},
		opticsFields(),
		[]FieldSpec{
			text(FieldFilter, "Filter", "AcquisitionSettings/SourceFilterName"),
		},
		cameraFields(),
		[]FieldSpec{
			stream(FieldBeamHardening, "Beam hardening", "", Float32, "ReconSettings/BeamHardening").prec(2),
			stream(fieldSourceRaw, "Source distance", "mm", Float32, "ImageInfo/StoRADistance").internal(),
			stream(fieldDetectorRaw, "Detector distance", "mm", Float32, "ImageInfo/DtoRADistance").internal(),
			derived(FieldSourceDistance, "Src-Obj distance", "mm", element(fieldSourceRaw, 0, 1, true)).prec(2),
			derived(FieldDetectorDistance, "Det-Obj distance", "mm", element(fieldDetectorRaw, 0, 1, false)).prec(2),
		},
		positionFields(),
		geometryFields(),
		[]FieldSpec{
			text(fieldModeString, "Acquisition mode string", "AcquisitionSettings/AcqModeString").internal(),
			derived(FieldAcquisitionCode, "Acquisition code", "", deriveAcquisitionCode).internal(),
		},
		modeFields(pathStitchEnabled, pathStitchSegments),
		[]FieldSpec{
			stream(fieldVariableAngle, "Variable angle mode", "", Int32, "AcquisitionSettings/VariableAngleMode").internal(),
			derived(FieldHART, "HART", "", enabled(fieldVariableAngle)),
			stream(fieldVariableExpMode, "Variable exposure mode", "", Int32, "AcquisitionSettings/VariableExposureTimeMode").internal(),
			derived(FieldVariableExposure, "Variable exposure", "", enabled(fieldVariableExpMode)),
		},
	)}
}

// rcpSchema describes one recipe sub-tree. Paths are relative to
// RecipePoint<N> unless shared.
func rcpSchema() *Schema {
	const acq = "AcquisitionSettings/"
	return &Schema{Kind: KindRCP, Fields: []FieldSpec{
		stream(FieldRecipeCount, "Number of recipes", "", Int32, "NoOfTomoDataSets").shared(),
		text(FieldRecipeName, "Recipe", "PointName"),
		text(fieldTimestamp, "Timestamp", "TimeStamp").shared().internal(),
		derived(FieldDate, "Date", "", dateFrom(fieldTimestamp, "2006-01-02")),
		derived(FieldTime, "Time", "", timeFrom(fieldTimestamp, 11, "150405")),

		stream(FieldVoltage, "kV", "kV", Float32, acq+"SrcVoltage"),
		stream(FieldPower, "Power", "W", Float32, acq+"SrcPower"),
		derived(FieldCurrent, "uA", "uA", quotient(FieldPower, FieldVoltage, 1000)).prec(1),

		stream(FieldProjections, "Projections taken", "", Int32, acq+"TotalImages"),
		stream(fieldEndAngle, "End angle", "deg", Float32, acq+"EndAngle").internal(),
		stream(fieldStartAngle, "Start angle", "deg", Float32, acq+"StartAngle").internal(),
		derived(FieldRotation, "Rotation", "deg", absSum(fieldEndAngle, fieldStartAngle)).prec(0),
		stream(FieldExposure, "Exposure", "s", Float32, acq+"ExpTime").prec(2),

		text(FieldObjective, "Objective lens", "MagStr"),
		text(FieldFilter, "Filter", acq+"SourceFilterName"),
		stream(FieldBinning, "Binning", "", Int32, acq+"Binning"),
		stream(FieldFrameAveraging, "Frame averaging", "", Int32, acq+"FramesPerImage"),
		stream(FieldBeamHardening, "Beam hardening", "", Float32, "ReconSettings/BeamHardening").prec(2),

		stream(fieldInitialPositions, "Initial positions", "", Float32, acq+"InitialPositions").n(6).internal(),
		derived(FieldSourceDistance, "Src-Obj distance", "mm", element(fieldInitialPositions, 4, 1, true)).prec(2),
		derived(FieldDetectorDistance, "Det-Obj distance", "mm", element(fieldInitialPositions, 5, 1, false)).prec(2),
		stream(fieldCCDPixelSize, "CCD pixel size", "um", Float32, acq+"CCDPixelSize").internal(),
		derived(FieldVoxelSize, "Voxel size", "um", deriveRecipeVoxelSize).prec(2),
		derived(FieldConeAngle, "Cone angle", "deg", deriveRecipeConeAngle).prec(2),
		derived(FieldXPosition, "X position", "um", element(fieldInitialPositions, 0, 1, false)).prec(2),
		derived(FieldYPosition, "Y position", "um", element(fieldInitialPositions, 1, 1, false)).prec(2),
		derived(FieldZPosition, "Z position", "um", element(fieldInitialPositions, 2, 1, false)).prec(2),

		text(fieldModeString, "Acquisition mode string", acq+"AcqModeString").internal(),
		derived(FieldAcquisitionCode, "Acquisition code", "", deriveAcquisitionCode).internal(),
		stream(FieldStitched, "Stitching enabled", "", Bool, "AutoStitchSettings/Enabled").internal(),
		derived(FieldAcquisitionMode, "Acquisition mode", "", deriveAcquisitionMode),
		stream(FieldSegments, "No. of segments", "", Int32, "AutoStitchSettings/NumSegments").when(Stitched),

		stream(fieldVariableAngle, "Variable angle mode", "", Int32, acq+"VariableAngleMode").internal(),
		derived(FieldHART, "HART", "", enabled(fieldVariableAngle)),
		stream(fieldVariableExpMode, "Variable exposure mode", "", Int32, acq+"VariableExposureTimeMode").internal(),
		derived(FieldVariableExposure, "Variable exposure", "", enabled(fieldVariableExpMode)),
	}}
}

// xrmSchema describes single radiographs.
func xrmSchema() *Schema {
	return &Schema{Kind: KindXRM, Fields: concat(
		imageInfoDate(),
		sourceFields(),
		[]FieldSpec{
			stream(FieldExposure, "Exposure", "s", Float32, "ImageInfo/ExpTimes", "Imageinfo/ExpTimes", "AcquisitionSettings/ExpTime").prec(2),
		},
		opticsFields(),
		cameraFields(),
		positionFields(),
		geometryFields(),
	)}
}
