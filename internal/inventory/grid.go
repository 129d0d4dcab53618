package inventory

// footprint returns the rotation-adjusted width/height for a placement.
func footprint(def *Definition, rotation int) (w, h int) {
	if rotation == 1 {
		return def.Height, def.Width
	}
	return def.Width, def.Height
}

// rectsOverlap is true iff two rectangles (x,y,w,h) are not disjoint on
// either axis.
func rectsOverlap(x1, y1, w1, h1, x2, y2, w2, h2 int) bool {
	return !(x1+w1 <= x2 || x2+w2 <= x1 || y1+h1 <= y2 || y2+h2 <= y1)
}

// fitsInBounds reports whether a w x h rectangle at (x,y) lies within a
// stashWidth x stashHeight grid.
func fitsInBounds(x, y, w, h, stashWidth, stashHeight int) bool {
	return x >= 0 && y >= 0 && x+w <= stashWidth && y+h <= stashHeight
}

// collides reports whether placing w x h at (x,y) overlaps any existing
// placement on c, excluding the item at excludeIID.
func (s *Service) collides(c *Character, excludeIID string, x, y, w, h int) bool {
	for iid, p := range c.Placements {
		if iid == excludeIID {
			continue
		}
		item := c.Items[p.IID]
		if item == nil {
			continue
		}
		def := s.catalog.Get(item.DefinitionID)
		if def == nil {
			continue
		}
		ow, oh := footprint(def, p.Rotation)
		if rectsOverlap(x, y, w, h, p.X, p.Y, ow, oh) {
			return true
		}
	}
	return false
}

// firstFitPlacement scans y top-down then x left-to-right, returning the
// first non-colliding slot for a w x h rectangle, or ok=false if the stash
// has no room (spec's auto-placement algorithm).
func (s *Service) firstFitPlacement(c *Character, w, h int) (x, y int, ok bool) {
	for y := 0; y+h <= c.StashHeight; y++ {
		for x := 0; x+w <= c.StashWidth; x++ {
			if !s.collides(c, "", x, y, w, h) {
				return x, y, true
			}
		}
	}
	return 0, 0, false
}
