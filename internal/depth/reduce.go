package depth

// Reduced is a decimated, thresholded copy of a Frame.
//
// Each cell holds the sample at the top-left corner of its Factor×Factor
// block in the source frame, or 0 when that sample fell outside the
// threshold window. A genuine 0 reading and a masked sample are therefore
// indistinguishable; the tracker treats both as "no data".
type Reduced struct {
	Width  int
	Height int
	Factor int

	// SourceWidth and SourceHeight are the dimensions of the frame this
	// buffer was reduced from, needed to map cells back to pixels.
	SourceWidth  int
	SourceHeight int

	Window Window
	Data   []uint16
}

// At returns cell (i, j): column i, row j.
func (r *Reduced) At(i, j int) uint16 {
	return r.Data[j*r.Width+i]
}

// NonZero counts cells that survived the threshold.
func (r *Reduced) NonZero() int {
	n := 0
	for _, v := range r.Data {
		if v != 0 {
			n++
		}
	}
	return n
}

// Reduce downsamples f by factor and zeroes samples outside w.
//
// Sampling is nearest-corner, not averaged: cell (i, j) is the sample at
// row j*factor, column i*factor. The result has floor(W/factor) columns and
// floor(H/factor) rows. Reduce is pure; calling it twice with the same
// inputs yields identical buffers.
func Reduce(f *Frame, factor int, w Window) (*Reduced, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	if factor <= 0 {
		return nil, ErrBadFactor
	}
	if w.Begin >= w.End {
		return nil, ErrBadWindow
	}

	rw := f.Width / factor
	rh := f.Height / factor
	out := &Reduced{
		Width:        rw,
		Height:       rh,
		Factor:       factor,
		SourceWidth:  f.Width,
		SourceHeight: f.Height,
		Window:       w,
		Data:         make([]uint16, rw*rh),
	}

	for j := 0; j < rh; j++ {
		row := j * factor * f.Width
		for i := 0; i < rw; i++ {
			v := f.Data[row+i*factor]
			if !w.Contains(v) {
				continue // already zero
			}
			out.Data[j*rw+i] = v
		}
	}

	tracef("reduced %dx%d -> %dx%d (factor=%d window=[%d,%d])",
		f.Width, f.Height, rw, rh, factor, w.Begin, w.End)
	return out, nil
}
