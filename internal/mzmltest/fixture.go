// Package mzmltest builds small mzML documents for tests.
package mzmltest

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// Precursor is a fixture precursor. Zero-valued optional fields are omitted.
type Precursor struct {
	SpectrumRef string
	Mz          float64
	Charge      int
	Intensity   float64
	Target      float64
	Lower       float64
	Upper       float64
}

// Scan is a fixture spectrum.
type Scan struct {
	ID        string
	MsLevel   int
	Centroid  bool
	RT        float64
	RTUnit    string // defaults to minute
	IIT       float64
	TIC       float64
	IM        float64
	Mz        []float64
	Intensity []float64

	Precursors []Precursor

	// Zlib compresses both arrays; Float64 writes 64-bit values instead of 32-bit.
	Zlib    bool
	Float64 bool

	// MzText replaces the encoded m/z payload verbatim.
	MzText string
	// Compression overrides the compression term of both arrays.
	Compression string

	OmitRT  bool
	OmitTIC bool
	OmitMz  bool
	Extra   string
}

// EncodeFloats encodes values as little-endian floats of the given width,
// optionally zlib-compressed, and returns base64 text.
func EncodeFloats(values []float64, width int, compress bool) string {
	var raw bytes.Buffer
	for _, v := range values {
		if width == 64 {
			_ = binary.Write(&raw, binary.LittleEndian, math.Float64bits(v))
		} else {
			_ = binary.Write(&raw, binary.LittleEndian, math.Float32bits(float32(v)))
		}
	}
	payload := raw.Bytes()
	if compress {
		var zbuf bytes.Buffer
		zw := zlib.NewWriter(&zbuf)
		_, _ = zw.Write(payload)
		_ = zw.Close()
		payload = zbuf.Bytes()
	}
	return base64.StdEncoding.EncodeToString(payload)
}

// Document renders scans as an indexed-free mzML document.
func Document(scans ...Scan) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>
<mzML xmlns="http://psi.hupo.org/ms/mzml" version="1.1.0">
  <cvList count="2">
    <cv id="MS" fullName="Proteomics Standards Initiative Mass Spectrometry Ontology"/>
    <cv id="UO" fullName="Unit Ontology"/>
  </cvList>
  <referenceableParamGroupList count="1">
    <referenceableParamGroup id="CommonMS">
      <cvParam cvRef="MS" accession="MS:1000130" name="positive scan" value=""/>
    </referenceableParamGroup>
  </referenceableParamGroupList>
  <run id="run1">
    <spectrumList count="`)
	fmt.Fprintf(&b, "%d", len(scans))
	b.WriteString(`">` + "\n")
	for i, s := range scans {
		writeScan(&b, i, s)
	}
	b.WriteString(`    </spectrumList>
    <chromatogramList count="1">
      <chromatogram index="0" id="TIC" defaultArrayLength="1">
        <binaryDataArrayList count="1">
          <binaryDataArray encodedLength="0">
            <cvParam cvRef="MS" accession="MS:1000523" name="64-bit float" value=""/>
            <cvParam cvRef="MS" accession="MS:1000595" name="time array" value=""/>
            <binary>!!notbase64!!</binary>
          </binaryDataArray>
        </binaryDataArrayList>
      </chromatogram>
    </chromatogramList>
  </run>
</mzML>
`)
	return b.String()
}

func writeScan(b *strings.Builder, i int, s Scan) {
	fmt.Fprintf(b, `      <spectrum index="%d" id="%s" defaultArrayLength="%d">`+"\n", i, s.ID, len(s.Mz))
	b.WriteString(`        <referenceableParamGroupRef ref="CommonMS"/>` + "\n")
	if s.MsLevel > 0 {
		fmt.Fprintf(b, `        <cvParam cvRef="MS" accession="MS:1000511" name="ms level" value="%d"/>`+"\n", s.MsLevel)
	}
	if s.Centroid {
		b.WriteString(`        <cvParam cvRef="MS" accession="MS:1000127" name="centroid spectrum" value=""/>` + "\n")
	} else {
		b.WriteString(`        <cvParam cvRef="MS" accession="MS:1000128" name="profile spectrum" value=""/>` + "\n")
	}
	if !s.OmitTIC {
		fmt.Fprintf(b, `        <cvParam cvRef="MS" accession="MS:1000285" name="total ion current" value="%g"/>`+"\n", s.TIC)
	}
	b.WriteString(s.Extra)

	b.WriteString(`        <scanList count="1">
          <cvParam cvRef="MS" accession="MS:1000795" name="no combination" value=""/>
          <scan>` + "\n")
	if !s.OmitRT {
		unit, unitName := "UO:0000031", "minute"
		if s.RTUnit == "second" {
			unit, unitName = "UO:0000010", "second"
		}
		fmt.Fprintf(b, `            <cvParam cvRef="MS" accession="MS:1000016" name="scan start time" value="%g" unitCvRef="UO" unitAccession="%s" unitName="%s"/>`+"\n", s.RT, unit, unitName)
	}
	fmt.Fprintf(b, `            <cvParam cvRef="MS" accession="MS:1000927" name="ion injection time" value="%g" unitCvRef="UO" unitAccession="UO:0000028" unitName="millisecond"/>`+"\n", s.IIT)
	if s.IM != 0 {
		fmt.Fprintf(b, `            <cvParam cvRef="MS" accession="MS:1002815" name="inverse reduced ion mobility" value="%g"/>`+"\n", s.IM)
	}
	b.WriteString(`            <scanWindowList count="1">
              <scanWindow>
                <cvParam cvRef="MS" accession="MS:1000501" name="scan window lower limit" value="100"/>
              </scanWindow>
            </scanWindowList>
          </scan>
        </scanList>` + "\n")

	if len(s.Precursors) > 0 {
		fmt.Fprintf(b, `        <precursorList count="%d">`+"\n", len(s.Precursors))
		for _, p := range s.Precursors {
			writePrecursor(b, p)
		}
		b.WriteString(`        </precursorList>` + "\n")
	}

	arrays := 2
	if s.OmitMz {
		arrays = 1
	}
	fmt.Fprintf(b, `        <binaryDataArrayList count="%d">`+"\n", arrays)
	width := 32
	if s.Float64 {
		width = 64
	}
	if !s.OmitMz {
		text := s.MzText
		if text == "" {
			text = EncodeFloats(s.Mz, width, s.Zlib)
		}
		writeArray(b, "MS:1000514", "m/z array", text, width, s)
	}
	writeArray(b, "MS:1000515", "intensity array", EncodeFloats(s.Intensity, width, s.Zlib), width, s)
	b.WriteString(`        </binaryDataArrayList>
      </spectrum>` + "\n")
}

func writePrecursor(b *strings.Builder, p Precursor) {
	if p.SpectrumRef != "" {
		fmt.Fprintf(b, `          <precursor spectrumRef="%s">`+"\n", p.SpectrumRef)
	} else {
		b.WriteString(`          <precursor>` + "\n")
	}
	if p.Target != 0 || p.Lower != 0 || p.Upper != 0 {
		b.WriteString(`            <isolationWindow>` + "\n")
		fmt.Fprintf(b, `              <cvParam cvRef="MS" accession="MS:1000827" name="isolation window target m/z" value="%g"/>`+"\n", p.Target)
		fmt.Fprintf(b, `              <cvParam cvRef="MS" accession="MS:1000828" name="isolation window lower offset" value="%g"/>`+"\n", p.Lower)
		fmt.Fprintf(b, `              <cvParam cvRef="MS" accession="MS:1000829" name="isolation window upper offset" value="%g"/>`+"\n", p.Upper)
		b.WriteString(`            </isolationWindow>` + "\n")
	}
	b.WriteString(`            <selectedIonList count="1">
              <selectedIon>` + "\n")
	if p.Mz != 0 {
		fmt.Fprintf(b, `                <cvParam cvRef="MS" accession="MS:1000744" name="selected ion m/z" value="%g"/>`+"\n", p.Mz)
	}
	if p.Charge != 0 {
		fmt.Fprintf(b, `                <cvParam cvRef="MS" accession="MS:1000041" name="charge state" value="%d"/>`+"\n", p.Charge)
	}
	if p.Intensity != 0 {
		fmt.Fprintf(b, `                <cvParam cvRef="MS" accession="MS:1000042" name="peak intensity" value="%g"/>`+"\n", p.Intensity)
	}
	b.WriteString(`              </selectedIon>
            </selectedIonList>
            <activation>
              <cvParam cvRef="MS" accession="MS:1000422" name="beam-type collision-induced dissociation" value=""/>
              <cvParam cvRef="MS" accession="MS:1000045" name="collision energy" value="27" unitCvRef="UO" unitAccession="UO:0000266" unitName="electronvolt"/>
            </activation>
          </precursor>` + "\n")
}

func writeArray(b *strings.Builder, acc, name, text string, width int, s Scan) {
	fmt.Fprintf(b, `          <binaryDataArray encodedLength="%d">`+"\n", len(text))
	if width == 64 {
		b.WriteString(`            <cvParam cvRef="MS" accession="MS:1000523" name="64-bit float" value=""/>` + "\n")
	} else {
		b.WriteString(`            <cvParam cvRef="MS" accession="MS:1000521" name="32-bit float" value=""/>` + "\n")
	}
	switch {
	case s.Compression != "":
		b.WriteString(s.Compression + "\n")
	case s.Zlib:
		b.WriteString(`            <cvParam cvRef="MS" accession="MS:1000574" name="zlib compression" value=""/>` + "\n")
	default:
		b.WriteString(`            <cvParam cvRef="MS" accession="MS:1000576" name="no compression" value=""/>` + "\n")
	}
	fmt.Fprintf(b, `            <cvParam cvRef="MS" accession="%s" name="%s" value=""/>`+"\n", acc, name)
	fmt.Fprintf(b, "            <binary>%s</binary>\n", text)
	b.WriteString(`          </binaryDataArray>` + "\n")
}

// TwoScans returns the reference document: an MS1 scan with three peaks followed
// by an MS2 scan with two peaks and one precursor at m/z 267.05.
func TwoScans() string {
	return Document(
		Scan{
			ID:        "scan=1",
			MsLevel:   1,
			Centroid:  true,
			RT:        0.5,
			IIT:       10,
			TIC:       600,
			Mz:        []float64{100.5, 200.25, 300.125},
			Intensity: []float64{100, 200, 300},
		},
		Scan{
			ID:        "scan=2",
			MsLevel:   2,
			Centroid:  true,
			RT:        0.6,
			IIT:       50,
			TIC:       30,
			Zlib:      true,
			Mz:        []float64{150.5, 250.5},
			Intensity: []float64{10, 20},
			Precursors: []Precursor{{
				SpectrumRef: "scan=1",
				Mz:          267.05,
				Charge:      2,
				Target:      267.05,
				Lower:       0.7,
				Upper:       0.7,
			}},
		},
	)
}
