package mzml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// EventKind identifies a structural event produced by Reader.
type EventKind int

const (
	EventSpectrumStart EventKind = iota + 1
	EventCvParam
	EventUserParam
	EventPrecursorStart
	EventPrecursorEnd
	EventBinaryArrayStart
	EventBinary
	EventBinaryArrayEnd
	EventSpectrumEnd
)

func (k EventKind) String() string {
	switch k {
	case EventSpectrumStart:
		return "spectrum-start"
	case EventCvParam:
		return "cv-param"
	case EventUserParam:
		return "user-param"
	case EventPrecursorStart:
		return "precursor-start"
	case EventPrecursorEnd:
		return "precursor-end"
	case EventBinaryArrayStart:
		return "binary-array-start"
	case EventBinary:
		return "binary"
	case EventBinaryArrayEnd:
		return "binary-array-end"
	case EventSpectrumEnd:
		return "spectrum-end"
	default:
		return "unknown"
	}
}

// Scope is the element a parameter event belongs to.
type Scope int

const (
	ScopeOther Scope = iota
	ScopeSpectrum
	ScopeScan
	ScopePrecursor
	ScopeIsolationWindow
	ScopeSelectedIon
	ScopeActivation
	ScopeBinaryArray
)

// Event is one flat structural event. Only the fields relevant to Kind are set.
type Event struct {
	Kind   EventKind
	Scope  Scope
	Offset int64

	// EventSpectrumStart
	ID                 string
	Index              int
	DefaultArrayLength int

	// EventPrecursorStart
	SpectrumRef string

	// EventBinaryArrayStart; -1 when the array does not declare its own length
	ArrayLength int

	// EventCvParam, EventUserParam
	Accession     string
	Name          string
	Value         string
	UnitAccession string

	// EventBinary. Valid until the next call to Next.
	Data []byte
}

// ErrUnexpectedEOF is wrapped in a ParseError when the stream ends inside a spectrum.
var ErrUnexpectedEOF = errors.New("unexpected end of document inside spectrum")

// Reader walks an mzML document and emits spectrum events without holding the
// document in memory. It only moves forward through the input.
type Reader struct {
	dec *xml.Decoder

	inSpectrum bool
	stack      []string
	spectra    int

	inBinary bool
	binary   bytes.Buffer

	// referenceable param groups, keyed by group id
	inGroupList bool
	groupID     string
	groups      map[string][]Event

	pending []Event
	err     error
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	dec := xml.NewDecoder(r)
	dec.Strict = true
	return &Reader{
		dec:    dec,
		stack:  make([]string, 0, 16),
		groups: make(map[string][]Event),
	}
}

// Offset returns the current byte offset in the input stream.
func (r *Reader) Offset() int64 {
	return r.dec.InputOffset()
}

// Next returns the next event, io.EOF at the end of the document, or a
// *ParseError. After an error every further call returns the same error.
func (r *Reader) Next() (Event, error) {
	if r.err != nil {
		return Event{}, r.err
	}
	if len(r.pending) > 0 {
		ev := r.pending[0]
		r.pending = r.pending[1:]
		return ev, nil
	}

	for {
		offset := r.dec.InputOffset()
		tok, err := r.dec.Token()
		if err != nil {
			if err == io.EOF {
				if r.inSpectrum {
					err = ErrUnexpectedEOF
				} else {
					r.err = io.EOF
					return Event{}, io.EOF
				}
			}
			r.err = &ParseError{Offset: offset, Err: err}
			return Event{}, r.err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			ev, ok, err := r.start(t, offset)
			if err != nil {
				r.err = &ParseError{Offset: offset, Err: err}
				return Event{}, r.err
			}
			if ok {
				return ev, nil
			}
		case xml.EndElement:
			if ev, ok := r.end(t, offset); ok {
				return ev, nil
			}
		case xml.CharData:
			if r.inBinary {
				r.binary.Write(t)
			}
		}
	}
}

func (r *Reader) start(t xml.StartElement, offset int64) (Event, bool, error) {
	name := t.Name.Local

	if r.inGroupList {
		switch name {
		case "referenceableParamGroup":
			r.groupID = attr(t, "id")
		case "cvParam":
			if r.groupID != "" {
				r.groups[r.groupID] = append(r.groups[r.groupID], paramEvent(EventCvParam, t, offset))
			}
		case "userParam":
			if r.groupID != "" {
				r.groups[r.groupID] = append(r.groups[r.groupID], paramEvent(EventUserParam, t, offset))
			}
		}
		return Event{}, false, nil
	}

	if !r.inSpectrum {
		switch name {
		case "referenceableParamGroupList":
			r.inGroupList = true
		case "spectrum":
			ev, err := r.spectrumStart(t, offset)
			if err != nil {
				return Event{}, false, err
			}
			r.inSpectrum = true
			r.stack = append(r.stack[:0], name)
			return ev, true, nil
		}
		return Event{}, false, nil
	}

	r.stack = append(r.stack, name)
	switch name {
	case "cvParam", "userParam":
		kind := EventCvParam
		if name == "userParam" {
			kind = EventUserParam
		}
		ev := paramEvent(kind, t, offset)
		ev.Scope = r.scope()
		return ev, true, nil
	case "referenceableParamGroupRef":
		return r.expandGroup(attr(t, "ref"), offset)
	case "precursor":
		return Event{
			Kind:        EventPrecursorStart,
			Offset:      offset,
			SpectrumRef: attr(t, "spectrumRef"),
		}, true, nil
	case "binaryDataArray":
		n, err := intAttr(t, "arrayLength", -1)
		if err != nil {
			return Event{}, false, err
		}
		return Event{Kind: EventBinaryArrayStart, Offset: offset, ArrayLength: n}, true, nil
	case "binary":
		r.inBinary = true
		r.binary.Reset()
	}
	return Event{}, false, nil
}

func (r *Reader) end(t xml.EndElement, offset int64) (Event, bool) {
	name := t.Name.Local

	if r.inGroupList {
		switch name {
		case "referenceableParamGroupList":
			r.inGroupList = false
		case "referenceableParamGroup":
			r.groupID = ""
		}
		return Event{}, false
	}
	if !r.inSpectrum {
		return Event{}, false
	}

	if len(r.stack) > 0 {
		r.stack = r.stack[:len(r.stack)-1]
	}

	switch name {
	case "binary":
		r.inBinary = false
		return Event{Kind: EventBinary, Offset: offset, Data: r.binary.Bytes()}, true
	case "binaryDataArray":
		return Event{Kind: EventBinaryArrayEnd, Offset: offset}, true
	case "precursor":
		return Event{Kind: EventPrecursorEnd, Offset: offset}, true
	case "spectrum":
		r.inSpectrum = false
		return Event{Kind: EventSpectrumEnd, Offset: offset}, true
	}
	return Event{}, false
}

func (r *Reader) spectrumStart(t xml.StartElement, offset int64) (Event, error) {
	index, err := intAttr(t, "index", r.spectra)
	if err != nil {
		return Event{}, err
	}
	length, err := intAttr(t, "defaultArrayLength", -1)
	if err != nil {
		return Event{}, err
	}
	r.spectra++
	return Event{
		Kind:               EventSpectrumStart,
		Offset:             offset,
		ID:                 attr(t, "id"),
		Index:              index,
		DefaultArrayLength: length,
	}, nil
}

// expandGroup queues the parameters of a referenceable group in the current scope.
func (r *Reader) expandGroup(ref string, offset int64) (Event, bool, error) {
	params, ok := r.groups[ref]
	if !ok {
		return Event{}, false, fmt.Errorf("unknown referenceableParamGroup %q", ref)
	}
	if len(params) == 0 {
		return Event{}, false, nil
	}
	scope := r.scope()
	for _, p := range params {
		p.Scope = scope
		p.Offset = offset
		r.pending = append(r.pending, p)
	}
	ev := r.pending[0]
	r.pending = r.pending[1:]
	return ev, true, nil
}

// scope resolves the owner of the element on top of the stack.
func (r *Reader) scope() Scope {
	parents := r.stack[:len(r.stack)-1]
	for _, name := range parents {
		if name == "productList" || name == "scanWindowList" {
			return ScopeOther
		}
	}
	for i := len(parents) - 1; i >= 0; i-- {
		switch parents[i] {
		case "binaryDataArray":
			return ScopeBinaryArray
		case "isolationWindow":
			return ScopeIsolationWindow
		case "selectedIon":
			return ScopeSelectedIon
		case "activation":
			return ScopeActivation
		case "precursor":
			return ScopePrecursor
		case "scan", "scanList":
			return ScopeScan
		case "spectrum":
			return ScopeSpectrum
		}
	}
	return ScopeOther
}

func paramEvent(kind EventKind, t xml.StartElement, offset int64) Event {
	return Event{
		Kind:          kind,
		Offset:        offset,
		Accession:     attr(t, "accession"),
		Name:          attr(t, "name"),
		Value:         attr(t, "value"),
		UnitAccession: attr(t, "unitAccession"),
	}
}

func attr(t xml.StartElement, name string) string {
	for _, a := range t.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func intAttr(t xml.StartElement, name string, fallback int) (int, error) {
	v := attr(t, name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("attribute %s=%q is not an integer", name, v)
	}
	return n, nil
}
