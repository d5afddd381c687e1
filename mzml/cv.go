package mzml

// PSI-MS and unit ontology accessions recognized by the assembler.
const (
	AccMsLevel            = "MS:1000511"
	AccMS1Spectrum        = "MS:1000579"
	AccMSnSpectrum        = "MS:1000580"
	AccCentroidSpectrum   = "MS:1000127"
	AccProfileSpectrum    = "MS:1000128"
	AccTotalIonCurrent    = "MS:1000285"
	AccScanStartTime      = "MS:1000016"
	AccIonInjectionTime   = "MS:1000927"
	AccInverseIonMobility = "MS:1002815"

	AccIsolationTarget = "MS:1000827"
	AccIsolationLower  = "MS:1000828"
	AccIsolationUpper  = "MS:1000829"
	AccSelectedIonMz   = "MS:1000744"
	AccChargeState     = "MS:1000041"
	AccPeakIntensity   = "MS:1000042"
	AccCollisionEnergy = "MS:1000045"

	AccMzArray        = "MS:1000514"
	AccIntensityArray = "MS:1000515"

	AccFloat32 = "MS:1000521"
	AccFloat64 = "MS:1000523"
	AccInt32   = "MS:1000519"
	AccInt64   = "MS:1000522"

	AccNoCompression      = "MS:1000576"
	AccZlib               = "MS:1000574"
	AccNumpressLinear     = "MS:1002312"
	AccNumpressPic        = "MS:1002313"
	AccNumpressSlof       = "MS:1002314"
	AccNumpressLinearZlib = "MS:1002746"
	AccNumpressPicZlib    = "MS:1002747"
	AccNumpressSlofZlib   = "MS:1002748"

	UnitSecond = "UO:0000010"
	UnitMinute = "UO:0000031"
	UnitMillis = "UO:0000028"
)

// compressionByAccession maps a compression term to its decoder variant.
var compressionByAccession = map[string]Compression{
	AccNoCompression:      CompressionNone,
	AccZlib:               CompressionZlib,
	AccNumpressLinear:     CompressionNumpressLinear,
	AccNumpressPic:        CompressionNumpressPic,
	AccNumpressSlof:       CompressionNumpressSlof,
	AccNumpressLinearZlib: CompressionNumpressLinearZlib,
	AccNumpressPicZlib:    CompressionNumpressPicZlib,
	AccNumpressSlofZlib:   CompressionNumpressSlofZlib,
}

var precisionByAccession = map[string]Precision{
	AccFloat32: PrecisionFloat32,
	AccFloat64: PrecisionFloat64,
	AccInt32:   PrecisionInt32,
	AccInt64:   PrecisionInt64,
}
