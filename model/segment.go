package model

import (
	"fmt"

	"github.com/agrover/melvin/merrors"
	"github.com/agrover/melvin/textfmt"
)

// Segment is the tagged-sum abstraction spec.md §9 calls for in place of
// the source's polymorphic segment hierarchy: one concrete type per
// variant, dispatched by a type switch rather than a plugin registry. The
// only variant melvin constructs today is Striped (spec.md §4.6's
// lv_create_linear always builds a single-stripe Striped segment), but the
// interface is shaped so a future Thinpool variant slots in without
// touching callers.
type Segment interface {
	// Kind is the on-disk segment "type" string, e.g. "striped".
	Kind() string
	StartExtent() uint64
	ExtentCount() uint64
	// DMTarget returns the kernel device-mapper target name this segment
	// maps to. A single-stripe Striped segment uses "linear" (spec.md
	// §4.7): the kernel has no reason to run the striped target over one
	// device.
	DMTarget() string
	// DMParams renders this segment's device-mapper target parameters
	// (everything after "<start> <length> <target>" in a table line),
	// given the volume's extent size and each dependency PV's pe_start.
	DMParams(extentSizeSectors uint64, peStart map[Device]uint64) (string, error)
	// UsedAreas returns this segment's used extent ranges, per
	// dependency device: start extent -> extent count.
	UsedAreas() map[Device]Range
	PVDependencies() []Device
	// ToTextMap renders the segmentN {...} section. pvNames maps each
	// dependency Device to the pv<i> name assigned for this commit.
	ToTextMap(pvNames map[Device]string) *textfmt.TextMap
}

// Range is a half-open extent range [Start, Start+Count).
type Range struct {
	Start uint64
	Count uint64
}

// Stripe is one device/offset pair within a Striped segment.
type Stripe struct {
	Device      Device
	StartExtent uint64
}

// StripedSegment is the "striped" segment variant: one or more stripes of
// equal extent count, laid end-to-end across LV address space. A single
// stripe is the "linear" case.
type StripedSegment struct {
	Start             uint64
	Count             uint64 // total extent count across all stripes
	StripeSizeSectors uint64 // meaningful only when len(Stripes) > 1
	Stripes           []Stripe
}

func (s *StripedSegment) Kind() string         { return "striped" }
func (s *StripedSegment) StartExtent() uint64  { return s.Start }
func (s *StripedSegment) ExtentCount() uint64  { return s.Count }

func (s *StripedSegment) DMTarget() string {
	if len(s.Stripes) == 1 {
		return "linear"
	}

	return "striped"
}

// perStripeExtents returns the extent count each individual stripe
// contributes: Count split evenly across len(Stripes).
func (s *StripedSegment) perStripeExtents() uint64 {
	return s.Count / uint64(len(s.Stripes))
}

func (s *StripedSegment) DMParams(extentSizeSectors uint64, peStart map[Device]uint64) (string, error) {
	if len(s.Stripes) == 0 {
		return "", &merrors.Invariant{Detail: "striped segment with no stripes"}
	}

	if len(s.Stripes) == 1 {
		st := s.Stripes[0]
		start, ok := peStart[st.Device]
		if !ok {
			return "", &merrors.Invariant{Detail: fmt.Sprintf("no pe_start known for device %s", st.Device)}
		}

		return fmt.Sprintf("%d:%d %d", st.Device.Major, st.Device.Minor, start+st.StartExtent*extentSizeSectors), nil
	}

	out := fmt.Sprintf("%d %d", len(s.Stripes), s.StripeSizeSectors)
	for _, st := range s.Stripes {
		start, ok := peStart[st.Device]
		if !ok {
			return "", &merrors.Invariant{Detail: fmt.Sprintf("no pe_start known for device %s", st.Device)}
		}

		out += fmt.Sprintf(" %d:%d %d", st.Device.Major, st.Device.Minor, start+st.StartExtent*extentSizeSectors)
	}

	return out, nil
}

func (s *StripedSegment) UsedAreas() map[Device]Range {
	extents := s.perStripeExtents()
	out := make(map[Device]Range, len(s.Stripes))
	for _, st := range s.Stripes {
		out[st.Device] = Range{Start: st.StartExtent, Count: extents}
	}

	return out
}

func (s *StripedSegment) PVDependencies() []Device {
	out := make([]Device, len(s.Stripes))
	for i, st := range s.Stripes {
		out[i] = st.Device
	}

	return out
}

func (s *StripedSegment) ToTextMap(pvNames map[Device]string) *textfmt.TextMap {
	m := textfmt.NewTextMap()
	m.Set("start_extent", textfmt.Number(s.Start))
	m.Set("extent_count", textfmt.Number(s.Count))
	m.Set("type", textfmt.String("striped"))
	m.Set("stripe_count", textfmt.Number(int64(len(s.Stripes))))

	list := make(textfmt.List, 0, len(s.Stripes)*2)
	for _, st := range s.Stripes {
		list = append(list, textfmt.String(pvNames[st.Device]), textfmt.Number(int64(st.StartExtent)))
	}

	m.Set("stripes", &list)

	return m
}

// segmentFromTextMap parses one segmentN {...} section. resolve maps a
// pv<i> cross-reference name to its Device, per spec.md §9's
// locally-scoped translation table.
func segmentFromTextMap(m *textfmt.TextMap, resolve func(string) (Device, bool)) (Segment, error) {
	kind, ok := m.GetString("type")
	if !ok {
		return nil, &merrors.Parse{Detail: "segment missing \"type\""}
	}

	switch kind {
	case "striped":
		return stripedFromTextMap(m, resolve)
	default:
		return nil, &merrors.Parse{Detail: fmt.Sprintf("unsupported segment type %q", kind)}
	}
}

func stripedFromTextMap(m *textfmt.TextMap, resolve func(string) (Device, bool)) (Segment, error) {
	start, ok := m.GetNumber("start_extent")
	if !ok {
		return nil, &merrors.Parse{Detail: "segment missing \"start_extent\""}
	}

	count, ok := m.GetNumber("extent_count")
	if !ok {
		return nil, &merrors.Parse{Detail: "segment missing \"extent_count\""}
	}

	stripeCount, ok := m.GetNumber("stripe_count")
	if !ok {
		return nil, &merrors.Parse{Detail: "segment missing \"stripe_count\""}
	}

	var stripeSize int64
	if stripeCount > 1 {
		v, ok := m.GetNumber("stripe_size")
		if !ok {
			return nil, &merrors.Parse{Detail: "multi-stripe segment missing \"stripe_size\""}
		}

		stripeSize = v
	}

	rawStripes, ok := m.GetList("stripes")
	if !ok {
		return nil, &merrors.Parse{Detail: "segment missing \"stripes\""}
	}

	if len(rawStripes) != int(stripeCount)*2 {
		return nil, &merrors.Parse{Detail: "\"stripes\" list length does not match stripe_count"}
	}

	stripes := make([]Stripe, 0, stripeCount)
	for i := 0; i < len(rawStripes); i += 2 {
		name, ok := rawStripes[i].(textfmt.String)
		if !ok {
			return nil, &merrors.Parse{Detail: "stripe entry: expected a pv cross-reference string"}
		}

		off, ok := rawStripes[i+1].(textfmt.Number)
		if !ok {
			return nil, &merrors.Parse{Detail: "stripe entry: expected a start-extent number"}
		}

		dev, ok := resolve(string(name))
		if !ok {
			return nil, &merrors.Invariant{Detail: fmt.Sprintf("segment references unknown pv %q", name)}
		}

		stripes = append(stripes, Stripe{Device: dev, StartExtent: uint64(off)})
	}

	return &StripedSegment{
		Start:             uint64(start),
		Count:             uint64(count),
		StripeSizeSectors: uint64(stripeSize),
		Stripes:           stripes,
	}, nil
}
