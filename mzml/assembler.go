package mzml

import (
	"strconv"
	"strings"
)

type arrayKind int

const (
	arrayOther arrayKind = iota
	arrayMz
	arrayIntensity
)

// pendingArray accumulates one binaryDataArray until its end event.
type pendingArray struct {
	enc      Encoding
	kind     arrayKind
	expected int
	text     []byte
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithDerivedTIC makes the assembler sum the intensity array when a spectrum
// carries no total ion current term.
func WithDerivedTIC() AssemblerOption {
	return func(a *Assembler) { a.deriveTIC = true }
}

// Assembler accumulates reader events into one in-flight Spectrum at a time.
type Assembler struct {
	deriveTIC bool

	cur        *Spectrum
	precursor  *Precursor
	hasIonMz   bool
	array      *pendingArray
	defaultLen int
	textBuf    []byte

	hasMsLevel   bool
	ms1Flag      bool
	hasStartTime bool
	hasInjection bool
	hasTIC       bool

	// err is the first failure seen for the in-flight spectrum.
	err error
}

// NewAssembler creates an Assembler.
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// InFlight reports whether a spectrum has been started but not completed.
func (a *Assembler) InFlight() bool {
	return a.cur != nil
}

// Reset drops any in-flight spectrum.
func (a *Assembler) Reset() {
	a.cur = nil
	a.precursor = nil
	a.hasIonMz = false
	a.array = nil
	a.defaultLen = -1
	a.hasMsLevel = false
	a.ms1Flag = false
	a.hasStartTime = false
	a.hasInjection = false
	a.hasTIC = false
	a.err = nil
}

// Handle consumes one event. It returns the completed spectrum on a spectrum-end
// event and nil otherwise. A *DecodeError or *ValidationError is returned at
// spectrum-end when the spectrum is unusable; the assembler is then ready for the
// next spectrum.
func (a *Assembler) Handle(ev Event) (*Spectrum, error) {
	if ev.Kind == EventSpectrumStart {
		a.Reset()
		a.cur = &Spectrum{
			ID:         ev.ID,
			Index:      ev.Index,
			Precursors: []Precursor{},
			CvParams:   []CvParam{},
		}
		a.defaultLen = ev.DefaultArrayLength
		return nil, nil
	}
	if a.cur == nil {
		return nil, nil
	}

	switch ev.Kind {
	case EventCvParam:
		a.cvParam(ev)
	case EventPrecursorStart:
		a.precursor = &Precursor{}
		a.hasIonMz = false
		if ev.SpectrumRef != "" {
			a.precursor.SpectrumRef = String(ev.SpectrumRef)
		}
	case EventPrecursorEnd:
		if a.precursor != nil {
			if !a.hasIonMz {
				a.fail(&ValidationError{
					ScanID: a.cur.ID,
					Field:  "selected_ion_mz",
					Reason: "missing",
				})
			}
			a.cur.Precursors = append(a.cur.Precursors, *a.precursor)
			a.precursor = nil
		}
	case EventBinaryArrayStart:
		expected := ev.ArrayLength
		if expected < 0 {
			expected = a.defaultLen
		}
		a.array = &pendingArray{expected: expected}
	case EventBinary:
		if a.array != nil {
			a.textBuf = append(a.textBuf[:0], ev.Data...)
			a.array.text = a.textBuf
		}
	case EventBinaryArrayEnd:
		a.finishArray()
	case EventSpectrumEnd:
		return a.finish()
	}
	return nil, nil
}

func (a *Assembler) fail(err error) {
	if a.err == nil {
		a.err = err
	}
}

func (a *Assembler) number(ev Event, field string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(ev.Value), 64)
	if err != nil {
		a.fail(&ValidationError{
			ScanID: a.cur.ID,
			Field:  field,
			Reason: "value " + strconv.Quote(ev.Value) + " is not numeric",
		})
		return 0, false
	}
	return v, true
}

func (a *Assembler) cvParam(ev Event) {
	s := a.cur
	switch ev.Scope {
	case ScopeSpectrum:
		switch ev.Accession {
		case AccMsLevel:
			n, err := strconv.ParseInt(strings.TrimSpace(ev.Value), 10, 32)
			if err != nil {
				a.fail(&ValidationError{ScanID: s.ID, Field: "ms_level", Reason: "not an integer"})
				return
			}
			s.MsLevel = int32(n)
			a.hasMsLevel = true
		case AccCentroidSpectrum:
			s.Centroid = true
		case AccProfileSpectrum:
			s.Centroid = false
		case AccTotalIonCurrent:
			if v, ok := a.number(ev, "total_ion_current"); ok {
				s.TotalIonCurrent = v
				a.hasTIC = true
			}
		case AccMS1Spectrum:
			a.ms1Flag = true
			a.annotate(ev)
		default:
			a.annotate(ev)
		}
	case ScopeScan:
		switch ev.Accession {
		case AccScanStartTime:
			if v, ok := a.number(ev, "scan_start_time"); ok {
				s.ScanStartTime = toMinutes(v, ev.UnitAccession)
				a.hasStartTime = true
			}
		case AccIonInjectionTime:
			if v, ok := a.number(ev, "ion_injection_time"); ok {
				s.IonInjectionTime = v
				a.hasInjection = true
			}
		case AccInverseIonMobility:
			if v, ok := a.number(ev, "inverse_ion_mobility"); ok {
				s.InverseIonMobility = Float64(v)
			}
		default:
			a.annotate(ev)
		}
	case ScopeIsolationWindow:
		a.isolationParam(ev)
	case ScopeSelectedIon:
		a.selectedIonParam(ev)
	case ScopeActivation:
		if ev.Accession == AccCollisionEnergy && s.CollisionEnergy == nil {
			if v, ok := a.number(ev, "collision_energy"); ok {
				s.CollisionEnergy = Float64(v)
			}
		}
		a.annotate(ev)
	case ScopeBinaryArray:
		a.arrayParam(ev)
	}
}

func (a *Assembler) annotate(ev Event) {
	if ev.Accession == "" {
		return
	}
	a.cur.CvParams = append(a.cur.CvParams, CvParam{Accession: ev.Accession, Value: ev.Value})
}

func (a *Assembler) isolationParam(ev Event) {
	p := a.precursor
	if p == nil {
		return
	}
	var dst **float64
	switch ev.Accession {
	case AccIsolationTarget:
		dst = &p.IsolationWindowTarget
	case AccIsolationLower:
		dst = &p.IsolationWindowLower
	case AccIsolationUpper:
		dst = &p.IsolationWindowUpper
	default:
		return
	}
	if v, ok := a.number(ev, "isolation_window"); ok {
		*dst = Float64(v)
	}
}

// selectedIonParam fills the precursor from its first selected ion.
func (a *Assembler) selectedIonParam(ev Event) {
	p := a.precursor
	if p == nil {
		return
	}
	switch ev.Accession {
	case AccSelectedIonMz:
		if a.hasIonMz {
			return
		}
		if v, ok := a.number(ev, "selected_ion_mz"); ok {
			p.SelectedIonMz = v
			a.hasIonMz = true
		}
	case AccChargeState:
		if p.SelectedIonCharge != nil {
			return
		}
		n, err := strconv.ParseInt(strings.TrimSpace(ev.Value), 10, 32)
		if err != nil {
			a.fail(&ValidationError{ScanID: a.cur.ID, Field: "selected_ion_charge", Reason: "not an integer"})
			return
		}
		p.SelectedIonCharge = Int32(int32(n))
	case AccPeakIntensity:
		if p.SelectedIonIntensity != nil {
			return
		}
		if v, ok := a.number(ev, "selected_ion_intensity"); ok {
			p.SelectedIonIntensity = Float64(v)
		}
	}
}

func (a *Assembler) arrayParam(ev Event) {
	arr := a.array
	if arr == nil {
		return
	}
	if p, ok := precisionByAccession[ev.Accession]; ok {
		arr.enc.Precision = p
		return
	}
	if c, ok := compressionByAccession[ev.Accession]; ok {
		arr.enc.Compression = c
		return
	}
	switch ev.Accession {
	case AccMzArray:
		arr.kind = arrayMz
	case AccIntensityArray:
		arr.kind = arrayIntensity
	default:
		if strings.Contains(strings.ToLower(ev.Name), "compression") {
			arr.enc.Compression = CompressionUnsupported
			arr.enc.Scheme = ev.Accession
		}
	}
}

func (a *Assembler) finishArray() {
	arr := a.array
	a.array = nil
	if arr == nil || a.err != nil || arr.kind == arrayOther {
		return
	}

	values, err := DecodeBinary(arr.text, arr.enc, arr.expected)
	if err != nil {
		if de, ok := err.(*DecodeError); ok {
			de.ScanID = a.cur.ID
		}
		a.fail(err)
		return
	}

	switch arr.kind {
	case arrayMz:
		if a.cur.Mz == nil {
			a.cur.Mz = values
		}
	case arrayIntensity:
		if a.cur.Intensity == nil {
			a.cur.Intensity = values
		}
	}
}

func (a *Assembler) finish() (*Spectrum, error) {
	s := a.cur
	defer a.Reset()

	if a.err != nil {
		return nil, a.err
	}
	if s.ID == "" {
		return nil, &ValidationError{Field: "id", Reason: "missing"}
	}

	if s.Mz == nil && s.Intensity == nil && a.defaultLen == 0 {
		s.Mz = []float64{}
		s.Intensity = []float64{}
	}
	if s.Mz == nil {
		return nil, &ValidationError{ScanID: s.ID, Field: "mz", Reason: "missing"}
	}
	if s.Intensity == nil {
		return nil, &ValidationError{ScanID: s.ID, Field: "intensity", Reason: "missing"}
	}

	if !a.hasMsLevel {
		if !a.ms1Flag {
			return nil, &ValidationError{ScanID: s.ID, Field: "ms_level", Reason: "missing"}
		}
		s.MsLevel = 1
	}
	if !a.hasStartTime {
		return nil, &ValidationError{ScanID: s.ID, Field: "scan_start_time", Reason: "missing"}
	}
	if !a.hasInjection {
		return nil, &ValidationError{ScanID: s.ID, Field: "ion_injection_time", Reason: "missing"}
	}
	if !a.hasTIC {
		if !a.deriveTIC {
			return nil, &ValidationError{ScanID: s.ID, Field: "total_ion_current", Reason: "missing"}
		}
		var tic float64
		for _, v := range s.Intensity {
			tic += v
		}
		s.TotalIonCurrent = tic
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func toMinutes(v float64, unit string) float64 {
	switch unit {
	case UnitSecond:
		return v / 60
	case UnitMillis:
		return v / 60000
	default:
		return v
	}
}
