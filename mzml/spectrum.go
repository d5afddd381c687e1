package mzml

// CvParam is a controlled-vocabulary annotation attached to a spectrum.
// Value is kept as source text even when the term is numeric.
type CvParam struct {
	Accession string `json:"accession"`
	Value     string `json:"value"`
}

// Precursor describes one isolation/selection event of a fragmentation scan.
type Precursor struct {
	SelectedIonMz         float64  `json:"selected_ion_mz"`
	SelectedIonCharge     *int32   `json:"selected_ion_charge,omitempty"`
	SelectedIonIntensity  *float64 `json:"selected_ion_intensity,omitempty"`
	IsolationWindowTarget *float64 `json:"isolation_window_target,omitempty"`
	IsolationWindowLower  *float64 `json:"isolation_window_lower,omitempty"`
	IsolationWindowUpper  *float64 `json:"isolation_window_upper,omitempty"`
	SpectrumRef           *string  `json:"spectrum_ref,omitempty"`
}

// Spectrum is one acquisition scan. It becomes exactly one mzparquet row.
type Spectrum struct {
	// Index is the ordinal of the spectrum in the source document.
	Index int `json:"index"`

	ID                 string      `json:"id"`
	MsLevel            int32       `json:"ms_level"`
	Centroid           bool        `json:"centroid"`
	ScanStartTime      float64     `json:"scan_start_time"`
	InverseIonMobility *float64    `json:"inverse_ion_mobility,omitempty"`
	IonInjectionTime   float64     `json:"ion_injection_time"`
	TotalIonCurrent    float64     `json:"total_ion_current"`
	Precursors         []Precursor `json:"precursors"`
	Mz                 []float64   `json:"mz"`
	Intensity          []float64   `json:"intensity"`
	CvParams           []CvParam   `json:"cv_params"`

	// CollisionEnergy is taken from the first precursor activation.
	// The wide layout carries it through CvParams only.
	CollisionEnergy *float64 `json:"collision_energy,omitempty"`
}

// Validate checks the invariants a spectrum must satisfy before it is emitted.
func (s *Spectrum) Validate() error {
	if s.ID == "" {
		return &ValidationError{Field: "id", Reason: "missing"}
	}
	if s.MsLevel < 1 {
		return &ValidationError{ScanID: s.ID, Field: "ms_level", Reason: "must be >= 1"}
	}
	if len(s.Mz) != len(s.Intensity) {
		return &ValidationError{
			ScanID: s.ID,
			Field:  "intensity",
			Reason: "length differs from mz",
		}
	}
	return nil
}

// NumPeaks returns the number of (mz, intensity) pairs.
func (s *Spectrum) NumPeaks() int {
	return len(s.Mz)
}

// Float64 returns a pointer to v. Used to fill optional fields.
func Float64(v float64) *float64 { return &v }

// Int32 returns a pointer to v.
func Int32(v int32) *int32 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
