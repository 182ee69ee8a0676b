package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// FrameKind is the compression of a stack map frame relative to the previous
// one.
type FrameKind int

const (
	FrameSame FrameKind = iota
	FrameSameLocals1
	FrameChop
	FrameAppend
	FrameFull
)

// Verification type tags.
const (
	VTop               = 0
	VInteger           = 1
	VFloat             = 2
	VDouble            = 3
	VLong              = 4
	VNull              = 5
	VUninitializedThis = 6
	VObject            = 7
	VUninitialized     = 8
)

// VerificationType is a verification_type_info entry. Index is the class
// constant of an Object; New is the `new` instruction of an Uninitialized.
type VerificationType struct {
	Tag   byte
	Index uint16
	New   *Label
}

// Frame is a StackMapTable entry placed at Label. Chop is the number of
// locals removed by a chop frame; Locals holds the appended locals of an
// append frame or all locals of a full frame.
type Frame struct {
	Label  *Label
	Kind   FrameKind
	Chop   int
	Locals []VerificationType
	Stack  []VerificationType
}

func (d *decoder) decodeFrames(data []byte) ([]*Frame, error) {
	r := &reader{buf: data}
	count := r.u2()
	var frames []*Frame
	off := -1
	for i := 0; i < count && r.err == nil; i++ {
		t := r.u1()
		f := &Frame{}
		var delta int
		switch {
		case t <= 63:
			f.Kind, delta = FrameSame, t
		case t <= 127:
			f.Kind, delta = FrameSameLocals1, t-64
			f.Stack = d.decodeVTypes(r, 1)
		case t == 247:
			f.Kind, delta = FrameSameLocals1, r.u2()
			f.Stack = d.decodeVTypes(r, 1)
		case t >= 248 && t <= 250:
			f.Kind, f.Chop, delta = FrameChop, 251-t, r.u2()
		case t == 251:
			f.Kind, delta = FrameSame, r.u2()
		case t >= 252 && t <= 254:
			f.Kind, delta = FrameAppend, r.u2()
			f.Locals = d.decodeVTypes(r, t-251)
		case t == 255:
			f.Kind, delta = FrameFull, r.u2()
			f.Locals = d.decodeVTypes(r, r.u2())
			f.Stack = d.decodeVTypes(r, r.u2())
		default:
			return nil, fmt.Errorf("frame %d: reserved frame type %d", i, t)
		}
		if r.err != nil {
			break
		}
		off += delta + 1
		l, err := d.label(off)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		f.Label = l
		frames = append(frames, f)
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	for _, f := range frames {
		for _, vts := range [][]VerificationType{f.Locals, f.Stack} {
			for i := range vts {
				if vts[i].Tag != VUninitialized {
					continue
				}
				l, err := d.label(int(vts[i].Index))
				if err != nil {
					return nil, fmt.Errorf("uninitialized type: %w", err)
				}
				vts[i].New, vts[i].Index = l, 0
			}
		}
	}
	return frames, nil
}

// decodeVTypes reads n verification types. Uninitialized offsets are left in
// Index until all frames have been read.
func (d *decoder) decodeVTypes(r *reader, n int) []VerificationType {
	var vts []VerificationType
	for i := 0; i < n && r.err == nil; i++ {
		vt := VerificationType{Tag: byte(r.u1())}
		switch vt.Tag {
		case VObject, VUninitialized:
			vt.Index = uint16(r.u2())
		case VTop, VInteger, VFloat, VDouble, VLong, VNull, VUninitializedThis:
		default:
			r.err = fmt.Errorf("invalid verification type tag %d", vt.Tag)
		}
		vts = append(vts, vt)
	}
	return vts
}

// encodeFrames encodes the frames using the label offsets assigned by Encode.
func encodeFrames(frames []*Frame) ([]byte, error) {
	if len(frames) > math.MaxUint16 {
		return nil, fmt.Errorf("too many frames (%d)", len(frames))
	}
	var w bytes.Buffer
	put2 := func(v int) { binary.Write(&w, binary.BigEndian, uint16(v)) }
	put2(len(frames))

	prev := -1
	for i, f := range frames {
		delta := f.Label.Offset - prev - 1
		if delta < 0 {
			return nil, fmt.Errorf("frame %d at offset %d is not after the previous frame", i, f.Label.Offset)
		}
		prev = f.Label.Offset

		switch f.Kind {
		case FrameSame:
			if delta <= 63 {
				w.WriteByte(byte(delta))
			} else {
				w.WriteByte(251)
				put2(delta)
			}
		case FrameSameLocals1:
			if len(f.Stack) != 1 {
				return nil, fmt.Errorf("frame %d: same_locals_1_stack_item needs exactly one stack item", i)
			}
			if delta <= 63 {
				w.WriteByte(byte(64 + delta))
			} else {
				w.WriteByte(247)
				put2(delta)
			}
			encodeVTypes(&w, f.Stack)
		case FrameChop:
			if f.Chop < 1 || f.Chop > 3 {
				return nil, fmt.Errorf("frame %d: invalid chop count %d", i, f.Chop)
			}
			w.WriteByte(byte(251 - f.Chop))
			put2(delta)
		case FrameAppend:
			if len(f.Locals) < 1 || len(f.Locals) > 3 {
				return nil, fmt.Errorf("frame %d: invalid append count %d", i, len(f.Locals))
			}
			w.WriteByte(byte(251 + len(f.Locals)))
			put2(delta)
			encodeVTypes(&w, f.Locals)
		case FrameFull:
			w.WriteByte(255)
			put2(delta)
			put2(len(f.Locals))
			encodeVTypes(&w, f.Locals)
			put2(len(f.Stack))
			encodeVTypes(&w, f.Stack)
		default:
			return nil, fmt.Errorf("frame %d: unknown kind %d", i, f.Kind)
		}
		if delta > math.MaxUint16 {
			return nil, fmt.Errorf("frame %d: offset delta %d too large", i, delta)
		}
	}
	return w.Bytes(), nil
}

func encodeVTypes(w *bytes.Buffer, vts []VerificationType) {
	for _, vt := range vts {
		w.WriteByte(vt.Tag)
		switch vt.Tag {
		case VObject:
			binary.Write(w, binary.BigEndian, vt.Index)
		case VUninitialized:
			binary.Write(w, binary.BigEndian, uint16(vt.New.Offset))
		}
	}
}
